package harnessports

import (
	"context"
)

// Chat roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptMessage represents a single chat turn sent to a model.
type PromptMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	Messages []PromptMessage   // ordered turns; order is part of the prompt
	Meta     map[string]string // lightweight metadata for tracing/caching keys
}

// Options controls the single remote call.
type Options struct {
	Model        string
	Temperature  float64
	MaxNewTokens int // 0 leaves the backend default
	// Slot names the logical caller (e.g. "agent-3", "vote-2"). Identical
	// prompts issued from different slots are independent samples.
	Slot string
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Raw   any    // raw provider payload for debugging/telemetry
	Usage *Usage // optional usage information
}

// Provider is the abstraction for all remote LLM backends. Implementations
// make exactly one outbound call per Complete and never retry.
type Provider interface {
	Name() string
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
