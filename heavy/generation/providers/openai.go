// Package providers implements the remote model backends behind ports.Provider.
package providers

import (
	"context"
	"errors"
	"net/http"

	internal "github.com/ZanzyTHEbar/heavy-vote/heavy"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is reported when a backend is called without credentials.
var ErrMissingAPIKey = errors.New("missing API key")

// ErrNoChoices is reported when a backend answers without any completion.
var ErrNoChoices = errors.New("response contained no choices")

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (xAI, OpenRouter). SDK retries are disabled.
type OpenAIProvider struct {
	name   string
	apiKey string
	client openai.Client
}

// NewOpenAIProvider creates a backend for baseURL. httpClient may be nil.
func NewOpenAIProvider(name, apiKey, baseURL string, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIProvider{
		name:   name,
		apiKey: apiKey,
		client: openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// Complete issues one chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if p.apiKey == "" {
		return ports.Completion{}, p.fail(opts.Model, ErrMissingAPIKey)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(opts.Model),
		Messages:    toOpenAIMessages(in.Messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxNewTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.Completion{}, p.fail(opts.Model, err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, p.fail(opts.Model, ErrNoChoices)
	}

	return ports.Completion{
		Text: resp.Choices[0].Message.Content,
		Raw:  resp,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (p *OpenAIProvider) fail(model string, err error) error {
	return &internal.RemoteServiceError{Provider: p.name, Model: model, Err: err}
}

func toOpenAIMessages(messages []ports.PromptMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ports.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case ports.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var _ ports.Provider = (*OpenAIProvider)(nil)
