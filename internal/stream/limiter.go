package stream

import "time"

// Limiter answers whether a given item may proceed right now.
type Limiter[I any] interface {
	// TryTake returns nil if item may proceed (and consumes whatever credit
	// that requires), or *ErrInsufficientCredit if it must wait.
	TryTake(item I) error
	// Active reports whether the limiter still benefits from refilling, used
	// to garbage-collect idle per-partition limiters.
	Active() bool
}

// RateLimited forwards items from in to the returned channel only once
// limiter.TryTake succeeds for them. On failure it waits tick and retries,
// blocking the stream until the limiter has credit.
func RateLimited[I any](in <-chan I, limiter Limiter[I], tick time.Duration, stop <-chan struct{}) <-chan I {
	out := make(chan I)

	go func() {
		defer close(out)

		for {
			var item I
			var ok bool
			select {
			case item, ok = <-in:
				if !ok {
					return
				}
			case <-stop:
				return
			}

			for {
				if err := limiter.TryTake(item); err == nil {
					break
				}
				select {
				case <-time.After(tick):
				case <-stop:
					return
				}
			}

			select {
			case out <- item:
			case <-stop:
				return
			}
		}
	}()

	return out
}

type limiterPartition[I any] struct {
	limiter Limiter[I]
	queue   []I
}

// PartitionedLimiter keeps one Limiter per partition key, each gating its own
// queue of items independently; a slow or exhausted partition never blocks
// delivery for any other partition. Idle limiters (Active() == false with an
// empty queue) are garbage-collected on each tick so memory is bounded;
// re-creation on the next arrival is cheap.
func PartitionedLimiter[K comparable, I Partitioned[K]](
	in <-chan I,
	newLimiter func() Limiter[I],
	tick time.Duration,
	stop <-chan struct{},
) <-chan I {
	out := make(chan I)

	go func() {
		defer close(out)

		entries := map[K]*limiterPartition[I]{}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		drain := func(p *limiterPartition[I]) bool {
			for len(p.queue) > 0 {
				if err := p.limiter.TryTake(p.queue[0]); err != nil {
					return true
				}
				item := p.queue[0]
				p.queue = p.queue[1:]
				select {
				case out <- item:
				case <-stop:
					return false
				}
			}
			return true
		}

		for {
			select {
			case item, ok := <-in:
				if !ok {
					return
				}
				k := item.PartitionKey()
				p, exists := entries[k]
				if !exists {
					p = &limiterPartition[I]{limiter: newLimiter()}
					entries[k] = p
				}
				p.queue = append(p.queue, item)
				if !drain(p) {
					return
				}

			case <-ticker.C:
				for k, p := range entries {
					if !drain(p) {
						return
					}
					if len(p.queue) == 0 && !p.limiter.Active() {
						delete(entries, k)
					}
				}

			case <-stop:
				return
			}
		}
	}()

	return out
}
