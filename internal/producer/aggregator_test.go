package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedatabrew/kinesis-producer/internal/aggregate"
)

func TestRecordAggregatorProducesSingleFramedChild(t *testing.T) {
	a := newRecordAggregator(1<<20, 10)

	child1 := rec("k1", []byte("hello"))
	child1.predicted = &prediction{shardID: 1, generation: 1}
	child2 := rec("k2", []byte("world"))

	_, ok := a.TryPush(child1)
	require.True(t, ok)
	_, ok = a.TryPush(child2)
	require.True(t, ok)

	aggregated, ok := a.Take()
	require.True(t, ok)

	assert.Equal(t, "k1", aggregated.partitionKey, "synthetic record keeps the first child's partition key")
	assert.Equal(t, child1.predicted, aggregated.predicted)
	assert.Nil(t, aggregated.acker, "synthetic aggregate has no acker of its own")
	assert.Equal(t, []*record{child1, child2}, aggregated.children)

	table, wireRecords, err := aggregate.DecodeAggregated(aggregated.data)
	require.NoError(t, err)
	require.Len(t, wireRecords, 2)
	assert.Equal(t, "k1", table[wireRecords[0].PartitionKeyIndex])
	assert.Equal(t, []byte("hello"), wireRecords[0].Data)
	assert.Equal(t, "k2", table[wireRecords[1].PartitionKeyIndex])
	assert.Equal(t, []byte("world"), wireRecords[1].Data)
}

func TestRecordAggregatorOneElementEdgeCase(t *testing.T) {
	a := newRecordAggregator(1, 100) // max_bytes smaller than any real record

	_, ok := a.TryPush(rec("k", []byte("oversized payload")))
	require.True(t, ok, "aggregation must still emit a single oversized child rather than stall")

	aggregated, ok := a.Take()
	require.True(t, ok)
	assert.Len(t, aggregated.children, 1)
}
