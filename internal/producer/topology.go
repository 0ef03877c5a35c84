package producer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/usedatabrew/kinesis-producer/internal/log"
)

// shardRange is one entry of a published topology snapshot: the starting
// hash key of a shard, in big-endian 128-bit form, and its parsed id.
type shardRange struct {
	start   [16]byte
	shardID ShardID
}

// topologySnapshot is the immutable value a Topology publishes on every
// refresh. ranges is sorted ascending by start and covers [0, 2^128)
// without gaps, per the spec's invariant; a lookup is the greatest
// lower bound over start.
type topologySnapshot struct {
	ranges     []shardRange
	generation Generation
}

func (s *topologySnapshot) lookup(hash [16]byte) ShardID {
	// sort.Search finds the first index whose start is strictly greater
	// than hash; the answer is one before that.
	idx := sort.Search(len(s.ranges), func(i int) bool {
		return bytes.Compare(s.ranges[i].start[:], hash[:]) > 0
	}) - 1
	if idx < 0 {
		idx = 0
	}
	return s.ranges[idx].shardID
}

// Topology is a generation-tagged, atomically-published cache mapping
// partition hash keys to shard ids. Lookups are wait-free against the
// current snapshot; invalidation and refresh are serialized in a single
// background worker, per the spec's concurrency model.
type Topology struct {
	client     StreamClient
	streamName string
	log        log.Modular
	newBackoff func() backoff.BackOff
	stop       <-chan struct{}

	snapshot atomic.Pointer[topologySnapshot]

	mu      sync.Mutex
	pending bool
	wake    chan struct{}
}

// NewTopology constructs a Topology. It does not load an initial snapshot;
// call Start for that.
func NewTopology(client StreamClient, streamName string, logger log.Modular, newBackoff func() backoff.BackOff, stop <-chan struct{}) *Topology {
	if newBackoff == nil {
		newBackoff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return &Topology{
		client:     client,
		streamName: streamName,
		log:        logger,
		newBackoff: newBackoff,
		stop:       stop,
		wake:       make(chan struct{}, 1),
	}
}

// Start blocks until the first snapshot is published, retrying list_shards
// with backoff, then launches the background refresh worker and returns.
// It returns an error without starting the worker if stop fires, ctx is
// done, or the backoff gives up before a snapshot is obtained.
func (t *Topology) Start(ctx context.Context) error {
	if err := t.refreshWithBackoff(ctx); err != nil {
		return err
	}
	go t.run(ctx)
	return nil
}

// LookupShard is a wait-free point query against the current snapshot.
func (t *Topology) LookupShard(hash [16]byte) (ShardID, Generation) {
	snap := t.snapshot.Load()
	return snap.lookup(hash), snap.generation
}

// Invalidate schedules a refresh if gen equals the current generation.
// Repeated invalidations naming the same generation coalesce into one
// pending refresh; invalidations for older generations are no-ops.
func (t *Topology) Invalidate(gen Generation) {
	snap := t.snapshot.Load()
	if snap == nil || gen != snap.generation {
		return
	}

	t.mu.Lock()
	already := t.pending
	t.pending = true
	t.mu.Unlock()

	if already {
		return
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Topology) run(ctx context.Context) {
	for {
		select {
		case <-t.stop:
			return
		case <-t.wake:
			t.mu.Lock()
			t.pending = false
			t.mu.Unlock()

			if err := t.refreshWithBackoff(ctx); err != nil {
				t.log.Errorf("topology refresh abandoned: %v", err)
			}
		}
	}
}

// refreshWithBackoff retries list_shards with the configured backoff
// (exponential by default) until it succeeds, stop fires, ctx is done, or
// the backoff returns backoff.Stop. On success it publishes a new snapshot with
// generation = previous + 1 (or 1 for the very first snapshot).
func (t *Topology) refreshWithBackoff(ctx context.Context) error {
	b := t.newBackoff()
	for {
		ranges, err := t.fetchSnapshot(ctx)
		if err == nil {
			prev := t.snapshot.Load()
			var gen Generation = 1
			if prev != nil {
				gen = prev.generation + 1
			}
			t.snapshot.Store(&topologySnapshot{ranges: ranges, generation: gen})
			return nil
		}

		t.log.Warnf("topology refresh failed, retrying: %v", err)

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("topology refresh exhausted backoff: %w", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-t.stop:
			timer.Stop()
			return fmt.Errorf("shutting down during topology refresh: %w", err)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Topology) fetchSnapshot(ctx context.Context) ([]shardRange, error) {
	descriptors, err := t.client.ListShards(ctx, t.streamName)
	if err != nil {
		return nil, err
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("list_shards returned no shards for stream %q", t.streamName)
	}

	ranges := make([]shardRange, 0, len(descriptors))
	for _, d := range descriptors {
		shardID, err := parseShardID(d.ShardID)
		if err != nil {
			return nil, fmt.Errorf("parsing shard id %q: %w", d.ShardID, err)
		}
		ranges = append(ranges, shardRange{start: d.StartingHashKey, shardID: shardID})
	}
	sort.Slice(ranges, func(i, j int) bool {
		return bytes.Compare(ranges[i].start[:], ranges[j].start[:]) < 0
	})
	return ranges, nil
}

// parseShardID extracts the numeric suffix from a shard id of the form
// "shardId-000000000001". Shard ids that are already plain integers are
// accepted as-is.
func parseShardID(raw string) (ShardID, error) {
	trimmed := strings.TrimPrefix(raw, "shardId-")
	trimmed = strings.TrimLeft(trimmed, "0")
	if trimmed == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, err
	}
	return ShardID(n), nil
}
