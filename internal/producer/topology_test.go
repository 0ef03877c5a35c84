package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedatabrew/kinesis-producer/internal/log"
)

// fakeStreamClient is an in-memory StreamClient for pipeline-level tests.
// listShardsFn and putRecordsFn are swappable per test; listShardsCalls
// counts invocations for idempotence assertions.
type fakeStreamClient struct {
	mu sync.Mutex

	listShardsFn func(ctx context.Context) ([]ShardDescriptor, error)
	putRecordsFn func(ctx context.Context, entries []PutRecordsEntry) ([]PutRecordsResultEntry, error)

	listShardsCalls int32
}

func (c *fakeStreamClient) ListShards(ctx context.Context, streamName string) ([]ShardDescriptor, error) {
	atomic.AddInt32(&c.listShardsCalls, 1)
	c.mu.Lock()
	fn := c.listShardsFn
	c.mu.Unlock()
	return fn(ctx)
}

func (c *fakeStreamClient) PutRecords(ctx context.Context, streamName string, entries []PutRecordsEntry) ([]PutRecordsResultEntry, error) {
	c.mu.Lock()
	fn := c.putRecordsFn
	c.mu.Unlock()
	return fn(ctx, entries)
}

func twoShardDescriptors() []ShardDescriptor {
	var low, high [16]byte
	high[0] = 0x80 // second shard starts at the midpoint of the hash space
	return []ShardDescriptor{
		{ShardID: "shardId-000000000000", StartingHashKey: low},
		{ShardID: "shardId-000000000001", StartingHashKey: high},
	}
}

func TestTopologyStartLoadsInitialSnapshot(t *testing.T) {
	client := &fakeStreamClient{listShardsFn: func(ctx context.Context) ([]ShardDescriptor, error) {
		return twoShardDescriptors(), nil
	}}
	stop := make(chan struct{})
	defer close(stop)

	topo := NewTopology(client, "stream", log.Noop(), nil, stop)
	require.NoError(t, topo.Start(context.Background()))

	var lowHash, highHash [16]byte
	highHash[0] = 0xFF

	shardID, gen := topo.LookupShard(lowHash)
	assert.Equal(t, ShardID(0), shardID)
	assert.Equal(t, Generation(1), gen)

	shardID, _ = topo.LookupShard(highHash)
	assert.Equal(t, ShardID(1), shardID)
}

func TestTopologyInvalidateCoalescesConcurrentCalls(t *testing.T) {
	client := &fakeStreamClient{listShardsFn: func(ctx context.Context) ([]ShardDescriptor, error) {
		return twoShardDescriptors(), nil
	}}
	stop := make(chan struct{})
	defer close(stop)

	topo := NewTopology(client, "stream", log.Noop(), func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }, stop)
	require.NoError(t, topo.Start(context.Background()))

	_, gen := topo.LookupShard([16]byte{})
	require.Equal(t, Generation(1), gen)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topo.Invalidate(gen)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		_, newGen := topo.LookupShard([16]byte{})
		return newGen == Generation(2)
	}, time.Second, time.Millisecond)

	// At most the initial load plus one coalesced refresh.
	assert.LessOrEqual(t, atomic.LoadInt32(&client.listShardsCalls), int32(2))
}

func TestTopologyInvalidateIgnoresStaleGeneration(t *testing.T) {
	client := &fakeStreamClient{listShardsFn: func(ctx context.Context) ([]ShardDescriptor, error) {
		return twoShardDescriptors(), nil
	}}
	stop := make(chan struct{})
	defer close(stop)

	topo := NewTopology(client, "stream", log.Noop(), nil, stop)
	require.NoError(t, topo.Start(context.Background()))

	topo.Invalidate(Generation(0)) // older than current generation 1

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.listShardsCalls))
}

func TestTopologyRetriesOnFailureWithBackoff(t *testing.T) {
	var attempt int32
	client := &fakeStreamClient{listShardsFn: func(ctx context.Context) ([]ShardDescriptor, error) {
		if atomic.AddInt32(&attempt, 1) < 3 {
			return nil, fmt.Errorf("transient failure")
		}
		return twoShardDescriptors(), nil
	}}
	stop := make(chan struct{})
	defer close(stop)

	topo := NewTopology(client, "stream", log.Noop(), func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }, stop)
	require.NoError(t, topo.Start(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempt))
}
