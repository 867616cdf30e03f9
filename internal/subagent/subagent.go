// Package subagent implements the ephemeral, context-isolated agent the
// navigator spawns to read one chunk and answer one question, so the
// driving agent's context never sees raw chunk text (spec.md §4.10).
package subagent

import (
	"context"

	"docmind/internal/summarizer"
)

// Summarizer is the narrowed capability a sub-agent call needs: the same
// retrying, credential-bound, model-rotating call path summarization uses.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// SubAgent is a stateless factory for ephemeral, single-call agents bound to
// the "chunk-analyzer" configuration. A fresh call is made per invocation;
// nothing is retained between them, mirroring the synchronous single-call
// model in the retrieved corpus's subagent manager with the multi-step tool
// loop removed, since this contract is explicitly non-recursive and
// tool-free.
type SubAgent struct {
	Summ Summarizer
}

// New builds a SubAgent over a summarization service.
func New(summ Summarizer) *SubAgent {
	return &SubAgent{Summ: summ}
}

// Answer reads chunkText and answers question, using exactly that context
// and nothing else.
func (s *SubAgent) Answer(ctx context.Context, chunkText, question string) (string, error) {
	prompt := summarizer.SubAgentPrompt(chunkText, question)
	return s.Summ.Summarize(ctx, prompt)
}
