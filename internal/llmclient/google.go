package llmclient

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GoogleProvider wraps the Gemini SDK's single-turn GenerateContent call.
type GoogleProvider struct {
	apiKey string
}

// NewGoogleProvider builds a Provider bound to one API key. The underlying
// genai client is created per call since it is cheap and stateless, keeping
// this provider safe to construct once per credential slot without holding
// a live connection between calls.
func NewGoogleProvider(apiKey string) *GoogleProvider {
	return &GoogleProvider{apiKey: strings.TrimSpace(apiKey)}
}

const defaultGeminiModel = "gemini-2.0-flash"

func (p *GoogleProvider) Complete(ctx context.Context, prompt string, model string) (string, error) {
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
