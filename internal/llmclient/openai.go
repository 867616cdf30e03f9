package llmclient

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider wraps the OpenAI SDK's chat completions endpoint. Its
// constructor sets only the API key; no base-URL option is passed.
type OpenAIProvider struct {
	sdk openai.Client
}

// NewOpenAIProvider builds a Provider bound to one API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		sdk: openai.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, model string) (string, error) {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}

	resp, err := p.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
