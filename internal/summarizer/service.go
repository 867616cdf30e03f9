// Package summarizer is the shared summarization triad — credential pool,
// model rotator, and retrying LLM call — that both the ingester and the
// validator/repairer compose instead of each owning its own copy (spec.md
// §9, "cyclic ingester/validator reuse").
package summarizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"docmind/internal/credpool"
	"docmind/internal/llmclient"
	"docmind/internal/rotator"
	"docmind/internal/sentinel"
)

// Service is one call = one Summarize(prompt) -> text, per spec.md §4.6.
type Service struct {
	Pool           *credpool.Pool
	Rotator        *rotator.Rotator
	Factory        llmclient.Factory
	KeysByProvider map[string][]string
	MaxRetries     int
}

// New builds a summarization service. keysByProvider maps a provider name
// ("anthropic", "openai", "google") to its list of API keys; a slot's key
// for a provider is chosen deterministically by slot index modulo that
// provider's key count, so concurrent workers spread load across keys
// without needing a second pool per provider.
func New(pool *credpool.Pool, rot *rotator.Rotator, factory llmclient.Factory, keysByProvider map[string][]string, maxRetries int) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		Pool:           pool,
		Rotator:        rot,
		Factory:        factory,
		KeysByProvider: keysByProvider,
		MaxRetries:     maxRetries,
	}
}

// Summarize acquires a credential slot, calls the LLM with retry and
// rotation on sentinel failure, and returns the sanitized reply. It never
// returns an error for a failure the retry budget could not recover from —
// the caller receives sentinel.ProviderError as text instead (spec.md §4.6,
// §7). It does return an error if the context is done before a slot could
// be acquired at all.
func (s *Service) Summarize(ctx context.Context, prompt string) (string, error) {
	slot, err := s.Pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer s.Pool.Release(slot)

	op := func() (string, error) {
		cfg := s.Rotator.Next()
		cred := s.credentialFor(cfg.Provider, slot)

		provider, err := s.Factory.Build(cred)
		if err != nil {
			s.Rotator.ForceRotate()
			return "", err
		}

		reply, err := provider.Complete(ctx, prompt, cfg.Model)
		if err != nil {
			s.Rotator.ForceRotate()
			return "", err
		}
		if sentinel.HasProviderError(reply) {
			s.Rotator.ForceRotate()
			return "", errors.New(reply)
		}
		return sentinel.Sanitize(reply), nil
	}

	result, err := backoff.Retry(ctx, op, backoff.WithMaxTries(uint(s.MaxRetries)))
	if err != nil {
		return sentinel.ProviderError, nil
	}
	return result, nil
}

func (s *Service) credentialFor(provider string, slot int) llmclient.Credential {
	keys := s.KeysByProvider[provider]
	if len(keys) == 0 {
		return llmclient.Credential{Provider: provider}
	}
	return llmclient.Credential{Provider: provider, APIKey: keys[slot%len(keys)]}
}

// Prompts matching spec.md §6.1's contractual text shapes.

const leafPromptPrefix = "Summarize the following document segment. Identify key topics, entities, and events:\n\n"

const synthesisPromptPrefix = "Synthesize the following summaries into a cohesive higher-level summary:\n\n"

// LeafPrompt builds the leaf-summary prompt for a single chunk's text.
func LeafPrompt(chunkText string) string {
	return leafPromptPrefix + chunkText
}

// SynthesisPrompt builds the parent-summary prompt from its children's
// texts, concatenated with a blank line between each.
func SynthesisPrompt(childTexts []string) string {
	out := synthesisPromptPrefix
	for i, t := range childTexts {
		if i > 0 {
			out += "\n\n"
		}
		out += t
	}
	return out
}

// subAgentMarkerOpen and subAgentMarkerClose wrap a sub-agent's raw answer so the calling agent can
// recognize delegated output (spec.md §4.10).
const subAgentMarkerOpen = "<subagent_answer>"
const subAgentMarkerClose = "</subagent_answer>"

func WrapSubAgentAnswer(answer string) string {
	return fmt.Sprintf("%s\n%s\n%s", subAgentMarkerOpen, answer, subAgentMarkerClose)
}

// SubAgentPrompt wraps chunk text and a question in explicit delimiters
// (spec.md §6.1).
func SubAgentPrompt(chunkText, question string) string {
	return fmt.Sprintf("<context>\n%s\n</context>\n<question>\n%s\n</question>", chunkText, question)
}
