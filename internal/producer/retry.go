package producer

import (
	"time"

	"github.com/usedatabrew/kinesis-producer/internal/log"
)

// RetryWorker is the single task standing between the sink's recovery path
// and the pipeline's entry point. It holds recovered records for a fixed
// backoff, then re-injects them at the submit stage so topology prediction
// and aggregation run again from scratch.
//
// Every item shares the same configured backoff, so a plain FIFO slice
// works as the delay queue: items become due in the order they were
// enqueued, and a single timer armed for the earliest one suffices.
type RetryWorker struct {
	in      <-chan *record
	out     chan<- *record
	backoff time.Duration
	log     log.Modular
	stop    <-chan struct{}
}

// NewRetryWorker constructs a RetryWorker. out is the channel records are
// re-pushed onto once their backoff elapses; it is ordinarily the same
// channel the Producer submits onto, closing the cycle the spec describes.
func NewRetryWorker(in <-chan *record, out chan<- *record, backoff time.Duration, logger log.Modular, stop <-chan struct{}) *RetryWorker {
	return &RetryWorker{in: in, out: out, backoff: backoff, log: logger, stop: stop}
}

type pendingRetry struct {
	record  *record
	readyAt time.Time
}

// Run drains in and the delay queue until in closes or stop fires.
// Terminates immediately on shutdown, acking anything still queued with
// WorkerDead instead of re-pushing it.
func (w *RetryWorker) Run() {
	var queue []pendingRetry
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	rearm := func() {
		if len(queue) == 0 {
			return
		}
		wait := time.Until(queue[0].readyAt)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}

	drainDead := func() {
		for _, p := range queue {
			p.record.ack(AckResult{Err: ErrWorkerDead})
		}
	}

	for {
		select {
		case <-w.stop:
			drainDead()
			return

		case r, ok := <-w.in:
			if !ok {
				drainDead()
				return
			}
			wasEmpty := len(queue) == 0
			queue = append(queue, pendingRetry{record: r, readyAt: time.Now().Add(w.backoff)})
			if wasEmpty {
				rearm()
			}

		case <-timer.C:
			now := time.Now()
			i := 0
			for ; i < len(queue); i++ {
				if queue[i].readyAt.After(now) {
					break
				}
				select {
				case w.out <- queue[i].record:
				case <-w.stop:
					for _, p := range queue[i:] {
						p.record.ack(AckResult{Err: ErrWorkerDead})
					}
					return
				}
			}
			queue = queue[i:]
			rearm()
		}
	}
}
