// Package stream implements the pipeline's stream combinators: a generic
// Reducer contract plus the Batched, Partitioned and rate-limited stream
// adapters built on top of it. These are owned state machines driven by
// goroutines and channels, not an inheritance hierarchy.
package stream

// Reducer accumulates items of type I and emits a single output of type O
// once its internal budget (size, count, or caller-driven flush) is
// exhausted.
//
// Invariant: after TryPush rejects an item, a subsequent Take must produce a
// non-empty output containing at least one previously accepted item, and the
// rejected item must be accepted when offered again (otherwise the pipeline
// would stall forever on it).
type Reducer[I, O any] interface {
	// TryPush attempts to accept item into the reducer's budget. If it fits,
	// TryPush consumes it and returns (zero, true). If it doesn't fit,
	// TryPush returns (item, false) and the reducer is unchanged.
	TryPush(item I) (rejected I, accepted bool)

	// Take flushes accumulated items into a single output. It returns
	// (zero, false) when the reducer is empty.
	Take() (out O, ok bool)

	// Empty reports whether the reducer currently holds nothing.
	Empty() bool
}

// Partitioned is implemented by items routed through a PartitionedStream; it
// supplies the partition key used to select the per-key reducer.
type Partitioned[K comparable] interface {
	PartitionKey() K
}
