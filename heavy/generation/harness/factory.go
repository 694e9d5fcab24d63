package harness

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/heavy-vote/heavy/config"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	harnessConfig *config.HarnessConfig
	timeout       time.Duration
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewFactory creates a new harness factory. m may be nil.
func NewFactory(harnessConfig *config.HarnessConfig, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Factory {
	return &Factory{
		harnessConfig: harnessConfig,
		timeout:       timeout,
		metrics:       m,
		logger:        logger,
	}
}

// CreateClient wraps provider with the configured decorations.
func (f *Factory) CreateClient(provider ports.Provider) *Client {
	return NewClient(provider,
		WithCache(f.createCache(), f.harnessConfig.CacheTTLSeconds),
		WithRateLimiter(f.createRateLimiter()),
		WithTracer(f.createTracer()),
		WithMetrics(f.metrics),
		WithTimeout(f.timeout),
	)
}

// CreateHistoryWindow returns the chat history window.
func (f *Factory) CreateHistoryWindow() *HistoryWindow {
	return NewHistoryWindow(Budget{
		MaxContextTokens: f.harnessConfig.MaxContextTokens,
		MaxTurns:         f.harnessConfig.MaxHistoryTurns,
	}, nil)
}

// CreateGuardrails returns the artifact sanitizer, or nil when redaction is off.
func (f *Factory) CreateGuardrails() *Guardrails {
	if !f.harnessConfig.RedactArtifacts {
		return nil
	}
	return NewGuardrails()
}

func (f *Factory) createCache() ports.Cache {
	if !f.harnessConfig.CacheEnabled {
		return &noOpCache{}
	}

	if f.harnessConfig.CacheBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: f.harnessConfig.RedisAddr})
		return adapters.NewRedisCache(client, "heavy:", f.logger)
	}

	return adapters.NewLRUCache(f.harnessConfig.CacheCapacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.harnessConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}

	refill := f.harnessConfig.RateLimitRefillRate
	if refill <= 0 {
		refill = time.Second
		f.logger.Warn().Dur("rate_limit_refill_rate", f.harnessConfig.RateLimitRefillRate).Msg("RateLimitRefillRate clamped to 1s")
	}

	return adapters.NewTokenBucket(f.harnessConfig.RateLimitCapacity, refill)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.harnessConfig.EnableTracing {
		return &noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

var (
	_ ports.Cache       = (*noOpCache)(nil)
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
)
