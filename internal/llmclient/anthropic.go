package llmclient

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens int64 = 2048

// AnthropicProvider wraps the Anthropic SDK's Messages endpoint.
type AnthropicProvider struct {
	sdk anthropic.Client
}

// NewAnthropicProvider builds a Provider bound to one API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		sdk: anthropic.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, model string) (string, error) {
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	resp, err := p.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
