package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucketMonotonicity(t *testing.T) {
	// For fill rate r and capacity c, the max number of successful
	// TryTake(1) calls over duration T starting from zero credit is
	// floor(min(c, r*T)).
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(10, 5, clock.Now)

	clock.Advance(2 * time.Second) // credit would be 20, capped at capacity 5

	successes := 0
	for i := 0; i < 100; i++ {
		if err := b.TryTake(1); err == nil {
			successes++
		} else {
			break
		}
	}
	assert.Equal(t, 5, successes)
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(1, 1, clock.Now)

	require.Error(t, b.TryTake(1)) // starts at zero credit

	clock.Advance(time.Second)
	require.NoError(t, b.TryTake(1))

	require.Error(t, b.TryTake(1))
}

func TestTokenBucketPeekDoesNotConsume(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(1, 1, clock.Now)
	clock.Advance(time.Second)

	ok, shortfall := b.Peek(1)
	assert.True(t, ok)
	assert.Zero(t, shortfall)

	// Peek must not have consumed the credit; Commit still succeeds.
	ok, _ = b.Peek(1)
	assert.True(t, ok)
	b.Commit(1)

	ok, shortfall = b.Peek(1)
	assert.False(t, ok)
	assert.Greater(t, shortfall, 0.0)
}

func TestTokenBucketTryTakeRejectsNonPositive(t *testing.T) {
	b := PerSecond(10)
	assert.Panics(t, func() { _ = b.TryTake(0) })
	assert.Panics(t, func() { _ = b.TryTake(-1) })
}
