package harness

import (
	"strings"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// PromptBuilder assembles provider-ready inputs from ordered chat turns.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build copies messages into a PromptInput, normalizing newlines and
// surrounding whitespace so equivalent prompts share cache keys.
// The caller's slice is never modified.
func (b *PromptBuilder) Build(messages []ports.PromptMessage, meta map[string]string) ports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	out := make([]ports.PromptMessage, len(messages))
	for i, m := range messages {
		out[i] = ports.PromptMessage{Role: m.Role, Content: norm(m.Content)}
	}

	return ports.PromptInput{
		Messages: out,
		Meta:     meta,
	}
}
