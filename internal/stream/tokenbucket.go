package stream

import (
	"fmt"
	"sync"
	"time"
)

// ErrInsufficientCredit is returned by TokenBucket.TryTake and by Limiter
// implementations when the requested weight cannot currently be afforded.
type ErrInsufficientCredit struct {
	// Shortfall is how much additional credit would have been required.
	Shortfall float64
}

func (e *ErrInsufficientCredit) Error() string {
	return fmt.Sprintf("insufficient credit: short by %v", e.Shortfall)
}

// Clock supplies the current time; swapped out in tests for a deterministic
// source.
type Clock func() time.Time

// TokenBucket is a monotonic credit accumulator with a fixed fill rate and
// burst capacity. It is confined to a single owner; concurrent callers must
// serialize access externally (TryTake itself is safe to call concurrently,
// but doing so defeats the "single reducer/limiter instance" ownership model
// described by the spec).
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	credit   float64
	last     time.Time
	now      Clock
}

// NewTokenBucket creates a bucket with fill rate r tokens/sec and burst
// capacity c. If c <= 0, c defaults to r.
func NewTokenBucket(r, c float64, now Clock) *TokenBucket {
	if c <= 0 {
		c = r
	}
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		rate:     r,
		capacity: c,
		credit:   0,
		last:     now(),
		now:      now,
	}
}

// PerSecond creates a bucket whose burst capacity equals its fill rate.
func PerSecond(ratePerSecond uint64) *TokenBucket {
	return NewTokenBucket(float64(ratePerSecond), float64(ratePerSecond), nil)
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.credit += elapsed * b.rate
		if b.credit > b.capacity {
			b.credit = b.capacity
		}
		b.last = now
	}
}

// TryTake attempts to withdraw n credits, refilling first. n must be
// strictly positive; zero or negative weights are a programmer error and
// panic.
func (b *TokenBucket) TryTake(n float64) error {
	if n <= 0 {
		panic("stream: TokenBucket.TryTake called with non-positive weight")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.credit >= n {
		b.credit -= n
		return nil
	}
	return &ErrInsufficientCredit{Shortfall: n - b.credit}
}

// Active reports whether refilling is still useful, i.e. the bucket has not
// reached its capacity.
func (b *TokenBucket) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.credit < b.capacity
}

// Peek reports whether n credits would currently be available, after
// refilling, without consuming them. ok is false means the shortfall is the
// amount by which credit falls short of n. Used to implement a two-phase
// take across more than one bucket, where all buckets must agree before any
// of them commits.
func (b *TokenBucket) Peek(n float64) (ok bool, shortfall float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.credit >= n {
		return true, 0
	}
	return false, n - b.credit
}

// Commit withdraws n credits after refilling. Callers are expected to have
// already confirmed availability via Peek; Commit still refills defensively
// but does not itself check sufficiency, since it is only ever called once
// every bucket in a multi-bucket take has agreed to proceed.
func (b *TokenBucket) Commit(n float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	b.credit -= n
}
