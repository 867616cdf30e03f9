package llmclient

import "fmt"

// DefaultFactory dispatches on Credential.Provider to build the matching
// vendor adapter, generalizing the teacher's specialists.buildProvider
// provider-name switch into the narrower Provider contract this module
// needs.
type DefaultFactory struct{}

func (DefaultFactory) Build(cred Credential) (Provider, error) {
	switch cred.Provider {
	case "anthropic":
		return NewAnthropicProvider(cred.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cred.APIKey), nil
	case "google":
		return NewGoogleProvider(cred.APIKey), nil
	default:
		return nil, fmt.Errorf("llmclient: unknown provider %q", cred.Provider)
	}
}
