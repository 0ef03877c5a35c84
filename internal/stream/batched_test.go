package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReducer batches up to n ints, concatenating them on Take.
type countingReducer struct {
	n   int
	buf []int
}

func newCountingReducer(n int) *countingReducer { return &countingReducer{n: n} }

func (r *countingReducer) TryPush(item int) (int, bool) {
	if len(r.buf) >= r.n {
		return item, false
	}
	r.buf = append(r.buf, item)
	return 0, true
}

func (r *countingReducer) Take() ([]int, bool) {
	if len(r.buf) == 0 {
		return nil, false
	}
	out := r.buf
	r.buf = nil
	return out, true
}

func (r *countingReducer) Empty() bool { return len(r.buf) == 0 }

func TestBatchedFlushesOnSizeBound(t *testing.T) {
	in := make(chan int)
	stop := make(chan struct{})
	defer close(stop)

	out := Batched[int, []int](in, newCountingReducer(3), time.Hour, stop)

	go func() {
		in <- 1
		in <- 2
		in <- 3
		in <- 4
	}()

	batch := <-out
	assert.Equal(t, []int{1, 2, 3}, batch)
}

func TestBatchedFlushesOnTimer(t *testing.T) {
	in := make(chan int)
	stop := make(chan struct{})
	defer close(stop)

	out := Batched[int, []int](in, newCountingReducer(100), 20*time.Millisecond, stop)

	in <- 1

	select {
	case batch := <-out:
		assert.Equal(t, []int{1}, batch)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer-triggered flush")
	}
}

func TestBatchedFlushesOnSourceClose(t *testing.T) {
	in := make(chan int)
	stop := make(chan struct{})
	defer close(stop)

	out := Batched[int, []int](in, newCountingReducer(100), time.Hour, stop)

	in <- 1
	in <- 2
	close(in)

	batch, ok := <-out
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, batch)

	_, ok = <-out
	assert.False(t, ok)
}
