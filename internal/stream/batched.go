package stream

import "time"

// Batched drives a single Reducer from the source channel in, emitting an
// output on the returned channel whenever the reducer rejects an item, a
// timer of maxWait since the first accepted item of the current batch
// elapses, or the source closes with a non-empty reducer (flushed once
// before the output channel closes).
//
// Batched preserves the arrival order of items in its outputs: it never
// reorders items relative to one another.
func Batched[I, O any](in <-chan I, reducer Reducer[I, O], maxWait time.Duration, stop <-chan struct{}) <-chan O {
	out := make(chan O)

	go func() {
		defer close(out)

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		batchOpen := false

		flush := func() bool {
			o, ok := reducer.Take()
			batchOpen = false
			if timer != nil {
				timer.Stop()
				timer = nil
			}
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

		push := func(item I) bool {
			for {
				rejected, accepted := reducer.TryPush(item)
				if accepted {
					if !batchOpen {
						batchOpen = true
						timer = time.NewTimer(maxWait)
					}
					return true
				}
				if !flush() {
					return false
				}
				item = rejected
			}
		}

		for {
			var timerC <-chan time.Time
			if timer != nil {
				timerC = timer.C
			}

			select {
			case item, ok := <-in:
				if !ok {
					flush()
					return
				}
				if !push(item) {
					return
				}
			case <-timerC:
				timer = nil
				if !flush() {
					return
				}
			case <-stop:
				flush()
				return
			}
		}
	}()

	return out
}
