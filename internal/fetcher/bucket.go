package fetcher

import (
	"context"
	"sync"
	"time"
)

// TokenBucket enforces the provider's request quota: capacity tokens per
// window, refilled continuously so a burst never front-loads more than the
// window allows. One bucket is shared by all callers of the fetcher.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
	now      func() time.Time // injectable clock for tests
}

// NewTokenBucket creates a bucket allowing n requests per window. The bucket
// starts full.
func NewTokenBucket(n int, window time.Duration) *TokenBucket {
	if n < 1 {
		n = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	nowFn := time.Now
	return &TokenBucket{
		capacity: float64(n),
		rate:     float64(n) / window.Seconds(),
		tokens:   float64(n),
		last:     nowFn(),
		now:      nowFn,
	}
}

// refill credits tokens accrued since the last update. Caller holds mu.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
}

// TryAcquire takes a token if one is available, without blocking.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is done. It returns
// ctx.Err() on cancellation; a nil return means one token was consumed.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
