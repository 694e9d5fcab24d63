package harnessports

import "context"

// Cache memoizes completions keyed by the full request, including the
// caller-provided slot so independent agents never share an entry.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
