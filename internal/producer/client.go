package producer

import "context"

// PutRecordsEntry is one entry of a put_records RPC request, positionally
// correlated with its PutRecordsResultEntry in the response.
type PutRecordsEntry struct {
	PartitionKey    string
	ExplicitHashKey string
	Data            []byte
}

// PutRecordsResultEntry is the stream service's per-entry response. Exactly
// one of (SequenceNumber, ShardID) or ErrorCode is populated, matching the
// positional, partially-successful nature of the underlying RPC.
type PutRecordsResultEntry struct {
	SequenceNumber string
	ShardID        string
	ErrorCode      string
	ErrorMessage   string
}

// ShardDescriptor is one shard's starting hash key as reported by
// list_shards, already parsed into the big-endian 128-bit representation
// used for topology lookups.
type ShardDescriptor struct {
	ShardID         string
	StartingHashKey [16]byte
}

// StreamClient is the injected RPC boundary to the stream service. Producer
// code never imports an AWS SDK type directly; only implementations of this
// interface do.
type StreamClient interface {
	PutRecords(ctx context.Context, streamName string, entries []PutRecordsEntry) ([]PutRecordsResultEntry, error)
	ListShards(ctx context.Context, streamName string) ([]ShardDescriptor, error)
}
