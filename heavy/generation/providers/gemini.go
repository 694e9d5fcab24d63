package providers

import (
	"context"
	"strings"

	internal "github.com/ZanzyTHEbar/heavy-vote/heavy"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini API client.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, &internal.StartupConfigError{Field: "provider.gemini_api_key", Reason: "GEMINI_API_KEY is not set"}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Complete issues one GenerateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	contents, system := toGenaiContents(in.Messages)

	temperature := float32(opts.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: system,
	}

	result, err := p.client.Models.GenerateContent(ctx, opts.Model, contents, config)
	if err != nil {
		return ports.Completion{}, &internal.RemoteServiceError{Provider: p.Name(), Model: opts.Model, Err: err}
	}
	if len(result.Candidates) == 0 {
		return ports.Completion{}, &internal.RemoteServiceError{Provider: p.Name(), Model: opts.Model, Err: ErrNoChoices}
	}

	comp := ports.Completion{Text: result.Text(), Raw: result}
	if u := result.UsageMetadata; u != nil {
		comp.Usage = &ports.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return comp, nil
}

// toGenaiContents maps user/assistant turns to contents and folds system
// turns, in order, into one system instruction.
func toGenaiContents(messages []ports.PromptMessage) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range messages {
		switch m.Role {
		case ports.RoleSystem:
			system = append(system, m.Content)
		case ports.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
}

var _ ports.Provider = (*GeminiProvider)(nil)
