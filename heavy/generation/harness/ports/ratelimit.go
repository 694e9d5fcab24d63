package harnessports

import "context"

// RateLimiter bounds in-flight calls per key. Acquire blocks until a permit
// is available or ctx is done.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
