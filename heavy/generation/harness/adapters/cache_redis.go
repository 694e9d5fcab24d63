package adapters

import (
	"context"
	"errors"
	"time"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache shares completions between processes through Redis.
// Lookup failures degrade to a miss so a cache outage never fails a run.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

// NewRedisCache wraps an existing client; keys are namespaced with prefix.
func NewRedisCache(client redis.UniversalClient, prefix string, logger zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCache) key(k string) string { return c.prefix + k }

// Get returns the cached payload if present.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("redis cache get failed")
		}
		return nil, false
	}
	return val, true
}

// Set stores the payload with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return c.client.Set(ctx, c.key(key), value, time.Duration(ttlSeconds)*time.Second).Err()
}

// Delete removes the key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

var _ ports.Cache = (*RedisCache)(nil)
