// Package majority implements multi-agent fan-out, aggregation by aspect merge
// or numeric vote, and final polishing over a remote text generator.
package majority

import (
	"context"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// Generator is the remote capability every phase depends on: ordered turns
// in, one assistant text out. Implementations may fail; callers never retry.
type Generator interface {
	Generate(ctx context.Context, messages []ports.PromptMessage, opts ports.Options) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages []ports.PromptMessage, opts ports.Options) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, messages []ports.PromptMessage, opts ports.Options) (string, error) {
	return f(ctx, messages, opts)
}

// System, User and Assistant build single turns.
func System(content string) ports.PromptMessage {
	return ports.PromptMessage{Role: ports.RoleSystem, Content: content}
}

func User(content string) ports.PromptMessage {
	return ports.PromptMessage{Role: ports.RoleUser, Content: content}
}

func Assistant(content string) ports.PromptMessage {
	return ports.PromptMessage{Role: ports.RoleAssistant, Content: content}
}

// Conversation is an immutable ordered list of turns. Extending it always
// copies, so concurrent agents never share a backing array.
type Conversation struct {
	turns []ports.PromptMessage
}

// NewConversation copies turns into a new conversation.
func NewConversation(turns ...ports.PromptMessage) Conversation {
	return Conversation{turns: append([]ports.PromptMessage(nil), turns...)}
}

// FromChat builds the context for one chat message: the prior exchanges as
// user/assistant turns followed by the new user message.
func FromChat(history []ports.PromptMessage, message string) Conversation {
	turns := make([]ports.PromptMessage, 0, len(history)+1)
	for _, h := range history {
		if h.Role == ports.RoleUser || h.Role == ports.RoleAssistant {
			turns = append(turns, h)
		}
	}
	turns = append(turns, User(message))
	return Conversation{turns: turns}
}

// With returns a copy with turns appended.
func (c Conversation) With(turns ...ports.PromptMessage) Conversation {
	out := make([]ports.PromptMessage, 0, len(c.turns)+len(turns))
	out = append(out, c.turns...)
	out = append(out, turns...)
	return Conversation{turns: out}
}

// Prepend returns a copy with turns placed first.
func (c Conversation) Prepend(turns ...ports.PromptMessage) Conversation {
	out := make([]ports.PromptMessage, 0, len(c.turns)+len(turns))
	out = append(out, turns...)
	out = append(out, c.turns...)
	return Conversation{turns: out}
}

// Messages returns a copy of the turns.
func (c Conversation) Messages() []ports.PromptMessage {
	return append([]ports.PromptMessage(nil), c.turns...)
}

func (c Conversation) Len() int { return len(c.turns) }

// Prompt returns the content of the last user turn.
func (c Conversation) Prompt() string {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == ports.RoleUser {
			return c.turns[i].Content
		}
	}
	return ""
}
