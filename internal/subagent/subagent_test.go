package subagent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"docmind/internal/subagent"
)

type fakeSummarizer struct {
	lastPrompt string
	reply      string
}

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, nil
}

func TestAnswerWrapsChunkAndQuestionInPrompt(t *testing.T) {
	summ := &fakeSummarizer{reply: "the answer"}
	sa := subagent.New(summ)

	out, err := sa.Answer(context.Background(), "chunk text here", "what happened?")
	require.NoError(t, err)
	require.Equal(t, "the answer", out)
	require.Contains(t, summ.lastPrompt, "<context>")
	require.Contains(t, summ.lastPrompt, "chunk text here")
	require.Contains(t, summ.lastPrompt, "<question>")
	require.Contains(t, summ.lastPrompt, "what happened?")
}
