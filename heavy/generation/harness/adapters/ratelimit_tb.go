package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// TokenBucket limits concurrent model calls per key. A permit is consumed on
// Acquire and handed back on release; idle buckets also refill over time.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	wake       map[string]chan struct{}
	capacity   int           // max tokens per bucket
	refillRate time.Duration // time between token refills
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		wake:       make(map[string]chan struct{}),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire waits for a token for key. It returns ErrRateLimitExceeded wrapping
// the context error when ctx ends first.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	for {
		wait, ok := tb.tryAcquire(key)
		if ok {
			var once sync.Once
			return func() { once.Do(func() { tb.put(key) }) }, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrRateLimitExceeded, ctx.Err())
		case <-timer.C:
		case <-tb.signal(key):
			timer.Stop()
		}
	}
}

// tryAcquire consumes a token or reports how long until the next refill.
func (tb *TokenBucket) tryAcquire(key string) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{tokens: tb.capacity, lastRefill: time.Now()}
		tb.buckets[key] = b
	}

	elapsed := time.Since(b.lastRefill)
	if added := int(elapsed / tb.refillRate); added > 0 {
		b.tokens = min(b.tokens+added, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(added) * tb.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return 0, true
	}

	return tb.refillRate - time.Since(b.lastRefill), false
}

func (tb *TokenBucket) put(key string) {
	tb.mu.Lock()
	if b, exists := tb.buckets[key]; exists {
		b.tokens = min(b.tokens+1, tb.capacity)
	}
	ch := tb.waiters(key)
	tb.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
}

// signal returns the wake-up channel for key.
func (tb *TokenBucket) signal(key string) <-chan struct{} {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.waiters(key)
}

// waiters must be called with tb.mu held.
func (tb *TokenBucket) waiters(key string) chan struct{} {
	ch, ok := tb.wake[key]
	if !ok {
		ch = make(chan struct{}, 1)
		tb.wake[key] = ch
	}
	return ch
}

// ErrRateLimitExceeded is returned when a permit could not be obtained.
var ErrRateLimitExceeded = &RateLimitError{Message: "rate limit exceeded"}

// RateLimitError describes a limiter rejection.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
