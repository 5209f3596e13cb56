package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token bucket. Tokens refill continuously at refillRate per
// second up to capacity; each admitted call deducts its cost. The bucket is
// refilled lazily on every access, so an idle limiter costs nothing.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	now func() time.Time
}

// NewRateLimiter creates a token bucket with the given capacity and refill
// rate in tokens per second. Non-positive values fall back to 1.
func NewRateLimiter(capacity, refillRate float64) *RateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = 1
	}
	rl := &RateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
	rl.lastRefill = rl.now()
	return rl
}

// refillLocked tops up the bucket from elapsed time. Callers hold the mutex.
func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

// TryAcquire deducts n tokens if available and reports whether it did.
// It never waits.
func (rl *RateLimiter) TryAcquire(n float64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(rl.now())
	if rl.tokens >= n {
		rl.tokens -= n
		return true
	}
	return false
}

// Acquire suspends the calling goroutine until n tokens are available, then
// deducts them. It returns early with the context error on cancellation, and
// with an error when n can never be satisfied.
func (rl *RateLimiter) Acquire(ctx context.Context, n float64) error {
	rl.mu.Lock()
	if n > rl.capacity {
		capacity := rl.capacity
		rl.mu.Unlock()
		return fmt.Errorf("resilience: acquire of %.2f tokens exceeds bucket capacity %.2f", n, capacity)
	}
	rl.mu.Unlock()

	for {
		rl.mu.Lock()
		now := rl.now()
		rl.refillLocked(now)
		if rl.tokens >= n {
			rl.tokens -= n
			rl.mu.Unlock()
			return nil
		}
		// Sleep exactly as long as the deficit takes to refill, then recheck
		// in case a concurrent caller won the race.
		wait := time.Duration((n - rl.tokens) / rl.refillRate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Available returns the current token count after a lazy refill. The value is
// always within [0, capacity].
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(rl.now())
	return rl.tokens
}

// Capacity returns the configured bucket size.
func (rl *RateLimiter) Capacity() float64 {
	return rl.capacity
}
