package providers

import (
	"context"
	"fmt"
	"sync"

	internal "github.com/ZanzyTHEbar/heavy-vote/heavy"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/armon/go-radix"
)

// Router dispatches each call to the backend registered under the longest
// prefix of the requested model id.
type Router struct {
	mu       sync.RWMutex
	tree     *radix.Tree
	fallback ports.Provider
}

// NewRouter creates a router; fallback serves unmatched models and may be nil.
func NewRouter(fallback ports.Provider) *Router {
	return &Router{tree: radix.New(), fallback: fallback}
}

// Register routes every model id starting with prefix to p.
func (r *Router) Register(prefix string, p ports.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Insert(prefix, p)
}

// Resolve returns the backend for model, or nil.
func (r *Router) Resolve(model string) ports.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, v, ok := r.tree.LongestPrefix(model); ok {
		return v.(ports.Provider)
	}
	return r.fallback
}

func (r *Router) Name() string { return "router" }

// Complete forwards to the resolved backend.
func (r *Router) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p := r.Resolve(opts.Model)
	if p == nil {
		return ports.Completion{}, &internal.RemoteServiceError{
			Provider: r.Name(),
			Model:    opts.Model,
			Err:      fmt.Errorf("no backend registered for model %q", opts.Model),
		}
	}
	return p.Complete(ctx, in, opts)
}

var _ ports.Provider = (*Router)(nil)
