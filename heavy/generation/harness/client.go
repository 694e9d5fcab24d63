package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	internal "github.com/ZanzyTHEbar/heavy-vote/heavy"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/metrics"
)

// Client is the model client used by every phase of a run. It issues exactly
// one provider call per Generate (unless served from cache) and reports every
// provider failure as *heavy.RemoteServiceError.
type Client struct {
	provider ports.Provider
	builder  *PromptBuilder
	cache    ports.Cache
	cacheTTL int
	limiter  ports.RateLimiter
	tracer   ports.Tracer
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithCache enables response caching.
func WithCache(cache ports.Cache, ttlSeconds int) ClientOption {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttlSeconds
	}
}

// WithRateLimiter bounds in-flight calls per model.
func WithRateLimiter(limiter ports.RateLimiter) ClientOption {
	return func(c *Client) { c.limiter = limiter }
}

// WithTracer emits a span per call.
func WithTracer(tracer ports.Tracer) ClientOption {
	return func(c *Client) { c.tracer = tracer }
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient wraps provider; every decoration defaults to a no-op.
func NewClient(provider ports.Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		builder:  NewPromptBuilder(),
		cache:    &noOpCache{},
		cacheTTL: 3600,
		limiter:  &noOpRateLimiter{},
		tracer:   &noOpTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate returns the text of the next assistant turn.
func (c *Client) Generate(ctx context.Context, messages []ports.PromptMessage, opts ports.Options) (string, error) {
	comp, err := c.Complete(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return comp.Text, nil
}

// Complete is Generate with usage information.
func (c *Client) Complete(ctx context.Context, messages []ports.PromptMessage, opts ports.Options) (ports.Completion, error) {
	in := c.builder.Build(messages, map[string]string{
		"model": opts.Model,
		"slot":  opts.Slot,
	})

	key := cacheKey(in, opts)
	if cached, ok := c.cache.Get(ctx, key); ok {
		c.metrics.ObserveCacheHit()
		c.tracer.Event(ctx, "cache_hit", map[string]any{"slot": opts.Slot, "model": opts.Model})
		return ports.Completion{Text: string(cached)}, nil
	}

	release, err := c.limiter.Acquire(ctx, opts.Model)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("waiting for model permit: %w", err)
	}
	defer release()

	ctx, finish := c.tracer.StartSpan(ctx, "model.complete", map[string]any{
		"provider": c.provider.Name(),
		"model":    opts.Model,
		"slot":     opts.Slot,
		"turns":    len(in.Messages),
	})

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	comp, err := c.provider.Complete(callCtx, in, opts)
	c.metrics.ObserveModelCall(c.provider.Name(), opts.Model, err, time.Since(start))
	if err != nil {
		err = asRemoteError(c.provider.Name(), opts.Model, err)
		finish(err)
		return ports.Completion{}, err
	}
	finish(nil)

	if comp.Usage != nil {
		c.metrics.ObserveTokens(opts.Model, comp.Usage.PromptTokens, comp.Usage.CompletionTokens)
	}

	if err := c.cache.Set(ctx, key, []byte(comp.Text), c.cacheTTL); err != nil {
		c.tracer.Event(ctx, "cache_error", map[string]any{"error": err.Error()})
	}

	return comp, nil
}

func asRemoteError(provider, model string, err error) error {
	var remote *internal.RemoteServiceError
	if errors.As(err, &remote) {
		return err
	}
	return &internal.RemoteServiceError{Provider: provider, Model: model, Err: err}
}

// cacheKey hashes everything that influences the completion.
func cacheKey(in ports.PromptInput, opts ports.Options) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	write(opts.Model)
	write(strconv.FormatFloat(opts.Temperature, 'g', -1, 64))
	write(strconv.Itoa(opts.MaxNewTokens))
	write(opts.Slot)
	for _, m := range in.Messages {
		write(m.Role)
		write(m.Content)
	}
	return "completion:" + hex.EncodeToString(h.Sum(nil))
}
