package stream

import "time"

type partitionEntry[I, O any] struct {
	reducer  Reducer[I, O]
	deadline time.Time
}

// PartitionedStream drives one Reducer instance per partition key observed
// on in, each advancing independently against a shared maxWait and a shared
// reducer factory. Flushing a partition (via rejection or its own timer)
// emits exactly one output and drops that partition's state; a later
// arrival for the same key lazily recreates it.
//
// Ordering: outputs for a single partition preserve the arrival order of
// their constituent items. No ordering is guaranteed across partitions.
func PartitionedStream[K comparable, I Partitioned[K], O any](
	in <-chan I,
	newReducer func() Reducer[I, O],
	maxWait time.Duration,
	stop <-chan struct{},
) <-chan O {
	out := make(chan O)

	go func() {
		defer close(out)

		entries := map[K]*partitionEntry[I, O]{}

		emit := func(o O, ok bool) bool {
			if !ok {
				return true
			}
			select {
			case out <- o:
				return true
			case <-stop:
				return false
			}
		}

		flush := func(k K) bool {
			e, exists := entries[k]
			if !exists {
				return true
			}
			delete(entries, k)
			o, ok := e.reducer.Take()
			return emit(o, ok)
		}

		flushAll := func() bool {
			for k := range entries {
				if !flush(k) {
					return false
				}
			}
			return true
		}

		nextTimer := func() *time.Timer {
			var soonest time.Time
			found := false
			for _, e := range entries {
				if !found || e.deadline.Before(soonest) {
					soonest = e.deadline
					found = true
				}
			}
			if !found {
				return nil
			}
			d := time.Until(soonest)
			if d < 0 {
				d = 0
			}
			return time.NewTimer(d)
		}

		for {
			timer := nextTimer()
			var timerC <-chan time.Time
			if timer != nil {
				timerC = timer.C
			}

			select {
			case item, ok := <-in:
				if timer != nil {
					timer.Stop()
				}
				if !ok {
					flushAll()
					return
				}

				k := item.PartitionKey()
				e, exists := entries[k]
				if !exists {
					e = &partitionEntry[I, O]{reducer: newReducer(), deadline: time.Now().Add(maxWait)}
					entries[k] = e
				}

				if rejected, accepted := e.reducer.TryPush(item); !accepted {
					if !flush(k) {
						return
					}
					e2 := &partitionEntry[I, O]{reducer: newReducer(), deadline: time.Now().Add(maxWait)}
					entries[k] = e2
					if _, accepted2 := e2.reducer.TryPush(rejected); !accepted2 {
						panic("stream: reducer rejected a freshly-flushed single item; budget is too small to hold one item")
					}
				}

			case <-timerC:
				now := time.Now()
				for k, e := range entries {
					if !e.deadline.After(now) {
						if !flush(k) {
							return
						}
					}
				}

			case <-stop:
				if timer != nil {
					timer.Stop()
				}
				flushAll()
				return
			}
		}
	}()

	return out
}
