package producer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/usedatabrew/kinesis-producer/internal/log"
	"github.com/usedatabrew/kinesis-producer/internal/shutdown"
	"github.com/usedatabrew/kinesis-producer/internal/stream"
)

// pipelineConfig collects every tunable PipelineBuilder needs to wire C1
// through C11 together.
type pipelineConfig struct {
	streamName string

	rpsPerShard uint64
	bpsPerShard uint64

	batchMaxRecords int
	batchMaxBytes   int
	batchMaxWait    time.Duration

	aggregateMaxRecords int
	aggregateMaxBytes   int
	aggregateMaxWait    time.Duration

	retryBackoff time.Duration
	rpcTimeout   time.Duration
	maxInFlight  int

	topologyBackoff func() backoff.BackOff
}

func defaultPipelineConfig() pipelineConfig {
	return pipelineConfig{
		rpsPerShard:         1000,
		bpsPerShard:         1_000_000,
		batchMaxRecords:     500,
		batchMaxBytes:       5_000_000,
		batchMaxWait:        100 * time.Millisecond,
		aggregateMaxRecords: 4_294_967_295,
		aggregateMaxBytes:   1_000_000,
		aggregateMaxWait:    100 * time.Millisecond,
		retryBackoff:        time.Second,
		rpcTimeout:          30 * time.Second,
		maxInFlight:         10,
	}
}

// PipelineBuilder collects configuration for a producer pipeline and wires
// its components together on Build, following the fluent-builder shape the
// pipeline was originally assembled with.
type PipelineBuilder struct {
	client StreamClient
	log    log.Modular
	conf   pipelineConfig
}

// NewPipelineBuilder starts a builder for the given stream with reasonable
// defaults; every field can be overridden with the With* methods before
// Build.
func NewPipelineBuilder(client StreamClient, streamName string, logger log.Modular) *PipelineBuilder {
	conf := defaultPipelineConfig()
	conf.streamName = streamName
	return &PipelineBuilder{client: client, log: logger, conf: conf}
}

func (b *PipelineBuilder) WithShardRateLimit(recordsPerSecond, bytesPerSecond uint64) *PipelineBuilder {
	b.conf.rpsPerShard = recordsPerSecond
	b.conf.bpsPerShard = bytesPerSecond
	return b
}

func (b *PipelineBuilder) WithBatch(maxRecords, maxBytes int, maxWait time.Duration) *PipelineBuilder {
	b.conf.batchMaxRecords = maxRecords
	b.conf.batchMaxBytes = maxBytes
	b.conf.batchMaxWait = maxWait
	return b
}

func (b *PipelineBuilder) WithAggregate(maxRecords, maxBytes int, maxWait time.Duration) *PipelineBuilder {
	b.conf.aggregateMaxRecords = maxRecords
	b.conf.aggregateMaxBytes = maxBytes
	b.conf.aggregateMaxWait = maxWait
	return b
}

func (b *PipelineBuilder) WithRetryBackoff(d time.Duration) *PipelineBuilder {
	b.conf.retryBackoff = d
	return b
}

func (b *PipelineBuilder) WithRPCTimeout(d time.Duration) *PipelineBuilder {
	b.conf.rpcTimeout = d
	return b
}

func (b *PipelineBuilder) WithMaxInFlight(n int) *PipelineBuilder {
	b.conf.maxInFlight = n
	return b
}

func (b *PipelineBuilder) WithTopologyBackoff(newBackoff func() backoff.BackOff) *PipelineBuilder {
	b.conf.topologyBackoff = newBackoff
	return b
}

// PipelineHandler owns every background worker started by Build. Shutdown
// broadcasts the shutdown signal and blocks until the sink has drained its
// in-flight RPCs and exited.
type PipelineHandler struct {
	signal *shutdown.Signal
	done   <-chan struct{}
}

// Shutdown triggers the shared shutdown signal and waits for the pipeline
// worker to fully exit. Idempotent.
func (h *PipelineHandler) Shutdown() {
	h.signal.Trigger()
	<-h.done
}

// Build starts the topology worker, the retry worker, and the pipeline
// worker, wiring: entry channel → topology prediction → partitioned
// aggregate → partitioned rate limit → batch → sink. It blocks on the
// topology's initial load before returning.
func (b *PipelineBuilder) Build(ctx context.Context) (*Producer, *PipelineHandler, error) {
	sig := shutdown.New()
	stop := sig.Done()

	topology := NewTopology(b.client, b.conf.streamName, b.log, b.conf.topologyBackoff, stop)
	if err := topology.Start(ctx); err != nil {
		return nil, nil, err
	}

	// entryCh is both the Producer's submit target and the retry worker's
	// resend target: a record re-entering the pipeline after backoff goes
	// through topology prediction and aggregation exactly as a fresh
	// submission would.
	entryCh := make(chan *record)
	predictedCh := make(chan *record)
	retryCh := make(chan *record)
	workerDone := make(chan struct{})

	go b.runPredictionStage(entryCh, predictedCh, topology, stop)

	aggregated := stream.PartitionedStream[ShardID, *record, *record](
		predictedCh,
		func() stream.Reducer[*record, *record] {
			return newRecordAggregator(b.conf.aggregateMaxBytes, b.conf.aggregateMaxRecords)
		},
		b.conf.aggregateMaxWait,
		stop,
	)

	limited := stream.PartitionedLimiter[ShardID, *record](
		aggregated,
		func() stream.Limiter[*record] {
			return newRecordLimiter(b.conf.rpsPerShard, b.conf.bpsPerShard)
		},
		time.Second,
		stop,
	)

	// Unlike the two stages above, batching is deliberately not keyed by
	// shard: a single global batcher lets one PutRecords call carry records
	// bound for different shards, amortizing RPC overhead across the whole
	// stream instead of per shard.
	batched := stream.Batched[*record, []*record](
		limited,
		newRecordBatcher(b.conf.batchMaxBytes, b.conf.batchMaxRecords),
		b.conf.batchMaxWait,
		stop,
	)

	sink := NewSink(b.client, b.conf.streamName, topology, b.log, b.conf.maxInFlight, b.conf.rpcTimeout, b.conf.aggregateMaxBytes, retryCh, stop)
	retryWorker := NewRetryWorker(retryCh, entryCh, b.conf.retryBackoff, b.log, stop)

	go retryWorker.Run()
	go func() {
		sink.Run(batched)
		close(workerDone)
	}()

	return newProducer(entryCh, workerDone), &PipelineHandler{signal: sig, done: workerDone}, nil
}

// runPredictionStage attaches a topology prediction to every record
// entering the pipeline, whether freshly submitted or re-pushed by the
// retry worker, before handing it to the partitioned aggregation stage.
func (b *PipelineBuilder) runPredictionStage(in <-chan *record, out chan<- *record, topology *Topology, stop <-chan struct{}) {
	defer close(out)

	for {
		select {
		case <-stop:
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			shardID, gen := topology.LookupShard(r.hashKey())
			r.predicted = &prediction{shardID: shardID, generation: gen}

			select {
			case out <- r:
			case <-stop:
				r.ack(AckResult{Err: ErrAckDropped})
				return
			}
		}
	}
}
