package producer

import "github.com/usedatabrew/kinesis-producer/internal/aggregate"

// recordAggregator is a Reducer over *record producing a single synthetic
// *record whose payload is the framed AggregatedRecord wire format. It
// delegates its size/count budget to an internal recordBatcher, exactly as
// the source implementation composes its aggregator out of its batcher.
type recordAggregator struct {
	inner *recordBatcher
}

func newRecordAggregator(maxBytes, maxRecords int) *recordAggregator {
	return &recordAggregator{inner: newRecordBatcher(maxBytes, maxRecords)}
}

func (a *recordAggregator) TryPush(item *record) (*record, bool) {
	return a.inner.TryPush(item)
}

func (a *recordAggregator) Empty() bool {
	return a.inner.Empty()
}

func (a *recordAggregator) Take() (*record, bool) {
	children, ok := a.inner.Take()
	if !ok {
		return nil, false
	}

	interner := aggregate.NewInterner()
	wireRecords := make([]aggregate.WireRecord, len(children))
	for i, child := range children {
		wireRecords[i] = aggregate.WireRecord{
			PartitionKeyIndex: interner.Intern(child.partitionKey),
			Data:              child.data,
		}
	}

	payload := aggregate.EncodeAggregated(interner.Take(), wireRecords)

	return &record{
		partitionKey: children[0].partitionKey,
		data:         payload,
		predicted:    children[0].predicted,
		acker:        nil,
		children:     children,
	}, true
}
