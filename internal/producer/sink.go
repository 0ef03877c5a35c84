package producer

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/usedatabrew/kinesis-producer/internal/log"
)

// throughputExceededCode is the stream service's error code for a shard
// that is temporarily over its write throughput budget.
const throughputExceededCode = "ProvisionedThroughputExceededException"

// Sink issues put_records RPCs for batches arriving on its input channel,
// classifies every positional result, and routes anything that isn't a
// clean success to the retry channel. It keeps a bounded set of in-flight
// RPCs via a counting semaphore, matching the spec's "bounded in-flight
// set, poll_flush drains them" shape without needing an explicit poll:
// each dispatch is its own goroutine and Run's shutdown path waits for all
// of them to finish.
type Sink struct {
	client         StreamClient
	streamName     string
	topology       *Topology
	log            log.Modular
	rpcTimeout     time.Duration
	maxRecordBytes int
	retryCh        chan<- *record
	stop           <-chan struct{}

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewSink constructs a Sink. maxInFlight bounds concurrent put_records
// calls; rpcTimeout bounds each individual call, with expiry treated as
// InternalFailure. maxRecordBytes is the stream service's single-record
// size limit (the same bound the aggregator enforces): the aggregator
// still emits an oversized child as a one-element aggregate rather than
// stalling the pipeline, so the sink is the last chance to reject it
// before ever issuing the RPC.
func NewSink(client StreamClient, streamName string, topology *Topology, logger log.Modular, maxInFlight int, rpcTimeout time.Duration, maxRecordBytes int, retryCh chan<- *record, stop <-chan struct{}) *Sink {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Sink{
		client:         client,
		streamName:     streamName,
		topology:       topology,
		log:            logger,
		rpcTimeout:     rpcTimeout,
		maxRecordBytes: maxRecordBytes,
		retryCh:        retryCh,
		stop:           stop,
		sem:            make(chan struct{}, maxInFlight),
	}
}

// Run consumes batches from in until it closes or stop fires, dispatching
// each as its own RPC under the in-flight bound. On shutdown it waits for
// every dispatched RPC to finish before returning, so in-flight records
// still have a chance to be acked rather than dropped.
func (s *Sink) Run(in <-chan []*record) {
	defer s.wg.Wait()

	for {
		select {
		case <-s.stop:
			return
		case batch, ok := <-in:
			if !ok {
				return
			}

			select {
			case s.sem <- struct{}{}:
			case <-s.stop:
				s.failBatch(batch)
				return
			}

			s.wg.Add(1)
			go func(batch []*record) {
				defer s.wg.Done()
				defer func() { <-s.sem }()
				s.dispatch(batch)
			}(batch)
		}
	}
}

func (s *Sink) failBatch(batch []*record) {
	for _, r := range batch {
		r.ack(AckResult{Err: ErrWorkerDead})
	}
}

func (s *Sink) dispatch(batch []*record) {
	// Reject oversized records before ever building the RPC: aggregation
	// still emits a single oversized child as a one-element aggregate
	// rather than stalling, so this is the last point that can catch it.
	deliverable := batch[:0:0]
	for _, r := range batch {
		if s.maxRecordBytes > 0 && r.len() > s.maxRecordBytes {
			r.ack(AckResult{Err: ErrRecordTooLarge})
			continue
		}
		deliverable = append(deliverable, r)
	}
	batch = deliverable
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.rpcTimeout)
	defer cancel()

	// dispatchID only correlates this batch's log lines; it carries no
	// protocol meaning and is never sent to the stream service.
	dispatchID, err := uuid.NewV4()
	logger := s.log
	if err == nil {
		logger = s.log.With("dispatch_id", dispatchID.String())
	}

	entries := make([]PutRecordsEntry, len(batch))
	for i, r := range batch {
		entries[i] = PutRecordsEntry{PartitionKey: r.partitionKey, Data: r.data}
	}

	results, rpcErr := s.client.PutRecords(ctx, s.streamName, entries)
	if rpcErr != nil {
		logger.Errorf("put_records failed for batch of %d: %v", len(batch), rpcErr)
		for _, r := range batch {
			s.recover(r)
		}
		return
	}

	for i, r := range batch {
		if i >= len(results) {
			logger.Warnf("put_records response shorter than request batch")
			s.recover(r)
			continue
		}
		s.handleResult(r, results[i])
	}
}

func (s *Sink) handleResult(r *record, res PutRecordsResultEntry) {
	if res.ErrorCode != "" {
		if res.ErrorCode == throughputExceededCode {
			s.log.Debugf("throughput exceeded, retrying: %s", res.ErrorMessage)
		} else {
			s.log.Warnf("record failed (%s): %s", res.ErrorCode, res.ErrorMessage)
		}
		s.recover(r)
		return
	}

	shardID, err := parseShardID(res.ShardID)
	if err != nil {
		s.log.Warnf("unparseable shard id %q: %v", res.ShardID, err)
		s.recover(r)
		return
	}

	if r.predicted != nil && shardID != r.predicted.shardID {
		s.topology.Invalidate(r.predicted.generation)
		s.recover(r)
		return
	}

	r.ack(AckResult{Ack: Ack{ShardID: shardID, SequenceNumber: res.SequenceNumber}})
}

// recover implements the resubmit rule: a record with children splits into
// its children (so one bad neighbor doesn't punish the rest of an
// aggregate); a childless record resubmits itself. The aggregate itself is
// never resubmitted.
func (s *Sink) recover(r *record) {
	if len(r.children) > 0 {
		for _, child := range r.children {
			s.enqueueRetry(child)
		}
		return
	}
	s.enqueueRetry(r)
}

func (s *Sink) enqueueRetry(r *record) {
	select {
	case s.retryCh <- r:
	case <-s.stop:
		r.ack(AckResult{Err: ErrWorkerDead})
	}
}
