package aireply

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
)

var ErrEmptyResponse = errors.New("provider returned no text")

// Provider generates text for a system instruction and a user prompt.
type Provider interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// AnthropicMessager is the slice of the Anthropic client the provider uses.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicProvider struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

// NewAnthropicProvider builds a provider from configuration. SDK retries are
// disabled so RetryPolicy alone decides when to retry.
func NewAnthropicProvider(cfg config.AIConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	client := anthropic.NewClient(opts...)
	return NewAnthropicProviderWith(&client.Messages, cfg.Model, cfg.MaxTokens)
}

func NewAnthropicProviderWith(messages AnthropicMessager, model string, maxTokens int64) *AnthropicProvider {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicProvider{messages: messages, model: model, maxTokens: maxTokens}
}

func (p *AnthropicProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
