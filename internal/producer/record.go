// Package producer implements the producer-facing submission/acknowledgement
// contract, the aggregation/batching/rate-limiting pipeline, the shard
// topology cache, and the sink/retry loop that sits in front of a sharded,
// partitioned, Kinesis-shaped stream service.
package producer

import (
	"crypto/md5" //nolint:gosec // required by the stream service's hashing scheme, not used for security
	"errors"
)

// Terminal errors surfaced to callers of Producer.Submit. All other
// classification errors are handled internally by the sink and retry
// worker and never escape the pipeline.
var (
	// ErrRecordTooLarge is returned when the sink rejects a record before
	// ever issuing the RPC, because it could never fit a batch.
	ErrRecordTooLarge = errors.New("record too large")
	// ErrWorkerDead is returned when the pipeline has shut down or its
	// worker has exited, at submit time or on any hop along the retry path.
	ErrWorkerDead = errors.New("producer worker is not running")
	// ErrAckDropped is returned when a record's reply slot was discarded
	// without being fulfilled, most commonly during shutdown.
	ErrAckDropped = errors.New("acknowledgement was dropped before delivery")
)

// ShardID is the stream service's parsed numeric shard identifier.
type ShardID uint64

// Generation tags a topology snapshot; it increases by one on every refresh.
type Generation uint64

// RawRecord is a caller-supplied logical record awaiting submission.
type RawRecord struct {
	PartitionKey string
	Data         []byte
}

// Ack is the successful result of placing a record onto a shard.
type Ack struct {
	ShardID        ShardID
	SequenceNumber string
}

// AckResult is the outcome of one submitted record: exactly one of Err (a
// terminal error) or a populated Ack.
type AckResult struct {
	Ack Ack
	Err error
}

type prediction struct {
	shardID    ShardID
	generation Generation
}

// record is the pipeline's internal unit of work. It is created once by a
// Submit call (or by the aggregator, which then owns its children) and
// consumed exactly once, via ack.
type record struct {
	partitionKey string
	data         []byte
	predicted    *prediction

	// acker delivers exactly one AckResult and is only set on records that
	// originated directly from a caller submission (aggregated synthetic
	// records have no acker of their own; their acks flow through children).
	acker chan AckResult

	children []*record
}

func (r *record) len() int {
	return len(r.data)
}

// PartitionKey implements stream.Partitioned[ShardID] so records can flow
// through the partitioned aggregation and rate-limiting stages, keyed by
// their predicted shard. Only called once a topology prediction has been
// attached.
func (r *record) PartitionKey() ShardID {
	return r.predicted.shardID
}

// hashKey computes MD5(partition_key) interpreted as a big-endian 128-bit
// value, matching the stream service's partition-to-shard hash scheme
// exactly; preserve this byte order or shard predictions silently diverge
// from server-side routing.
func (r *record) hashKey() [16]byte {
	return md5.Sum([]byte(r.partitionKey)) //nolint:gosec
}

// ack recursively delivers result to every descendant and then to the
// record's own acker, if any. acker is always buffered with capacity 1 and
// fired at most once, so the send never blocks; delivery is fire-and-forget
// and a receiver that has stopped listening is not an error.
func (r *record) ack(result AckResult) {
	for _, child := range r.children {
		child.ack(result)
	}
	if r.acker != nil {
		select {
		case r.acker <- result:
		default:
		}
	}
}
