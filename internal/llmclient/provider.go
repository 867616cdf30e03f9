// Package llmclient is the narrow, multi-vendor LLM client interface the
// summarizer, chunker, and sub-agent contract call through. It is a
// deliberately thin boundary: no retry, no tool-calling loop, no streaming —
// those belong to the rotator/worker layer above it (spec.md §1 scope).
package llmclient

import "context"

// Provider is one vendor's single-turn completion call, bound to one
// credential.
type Provider interface {
	// Complete sends a single user-role prompt to model and returns its raw
	// text reply.
	Complete(ctx context.Context, prompt string, model string) (string, error)
}

// Credential is an API key plus the provider name it authenticates against,
// handed to a Factory to build a bound Provider.
type Credential struct {
	Provider string
	APIKey   string
}

// Factory builds a Provider bound to one credential, used by the
// summarization service to materialize a client per acquired slot.
type Factory interface {
	Build(cred Credential) (Provider, error)
}
