package producer

import "context"

// Producer is the caller-facing front-end to the pipeline. It is safe for
// concurrent use: submissions from multiple goroutines are interleaved
// freely inside the pipeline, per the spec's concurrency model.
type Producer struct {
	submitCh   chan<- *record
	workerDone <-chan struct{}
}

func newProducer(submitCh chan<- *record, workerDone <-chan struct{}) *Producer {
	return &Producer{submitCh: submitCh, workerDone: workerDone}
}

// Submit wraps each RawRecord with a fresh, single-use reply slot, pushes it
// onto the pipeline's entry channel, then awaits every reply. The returned
// slice corresponds 1:1 with records by index, regardless of the order in
// which the pipeline actually completes them.
//
// A position reports WorkerDead if the pipeline worker has exited before the
// record could be pushed, and ctx's error if ctx is done first. It reports AckDropped if its
// reply slot was discarded without being fulfilled, which happens when the
// pipeline worker exits with the record still in flight.
func (p *Producer) Submit(ctx context.Context, records []RawRecord) []AckResult {
	results := make([]AckResult, len(records))
	ackers := make([]chan AckResult, len(records))

	for i, raw := range records {
		acker := make(chan AckResult, 1)
		rec := &record{partitionKey: raw.PartitionKey, data: raw.Data, acker: acker}

		select {
		case p.submitCh <- rec:
			ackers[i] = acker
		case <-p.workerDone:
			results[i] = AckResult{Err: ErrWorkerDead}
		case <-ctx.Done():
			results[i] = AckResult{Err: ctx.Err()}
		}
	}

	for i, acker := range ackers {
		if acker == nil {
			continue
		}
		select {
		case res := <-acker:
			results[i] = res
		case <-p.workerDone:
			// The worker finished at roughly the same moment; give the
			// already-buffered reply one last non-blocking chance before
			// declaring it dropped.
			select {
			case res := <-acker:
				results[i] = res
			default:
				results[i] = AckResult{Err: ErrAckDropped}
			}
		}
	}

	return results
}
