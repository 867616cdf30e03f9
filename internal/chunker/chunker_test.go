package chunker_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docmind/internal/chunker"
)

// charMeter treats each byte as one token, letting tests assert on exact
// character positions the way spec scenarios are written.
type charMeter struct{}

func (charMeter) Count(text string) int { return len(text) }

func (charMeter) TruncateTo(text string, maxTokens int) string {
	if len(text) <= maxTokens {
		return text
	}
	return text[:maxTokens]
}

func TestFixedWindowEmptyDocument(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0.25)
	chunks, err := c.Chunk(context.Background(), "", 4)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestFixedWindowMatchesSpecScenario(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0.25)
	chunks, err := c.Chunk(context.Background(), "abcdefghij", 4)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	require.Equal(t, "abcd", chunks[0].Text)
	require.Equal(t, 0, chunks[0].Start)
	require.Equal(t, 4, chunks[0].End)

	require.Equal(t, "defg", chunks[1].Text)
	require.Equal(t, 3, chunks[1].Start)
	require.Equal(t, 7, chunks[1].End)

	require.Equal(t, "ghij", chunks[2].Text)
	require.Equal(t, 6, chunks[2].Start)
	require.Equal(t, 10, chunks[2].End)
}

func TestFixedWindowCoverageAfterOverlapRemoval(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0.25)
	doc := "the quick brown fox jumps over the lazy dog and keeps running"
	chunks, err := c.Chunk(context.Background(), doc, 10)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].End
		cur := chunks[i]
		if cur.Start >= prevEnd {
			rebuilt.WriteString(cur.Text)
			continue
		}
		overlap := prevEnd - cur.Start
		require.LessOrEqual(t, overlap, len(cur.Text))
		rebuilt.WriteString(cur.Text[overlap:])
	}
	require.Equal(t, doc, rebuilt.String())
}

func TestFixedWindowLastChunkEndsAtDocumentEnd(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0.1)
	doc := "a document of moderate length for testing the tail chunk"
	chunks, err := c.Chunk(context.Background(), doc, 7)
	require.NoError(t, err)
	require.Equal(t, len(doc), chunks[len(chunks)-1].End)
}

func TestFixedWindowTagsHardBreakBeforeHeading(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0)
	doc := "abcd\n## next section\nmore text here"
	chunks, err := c.Chunk(context.Background(), doc, 4)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.True(t, chunks[0].HardBreakAfter)
}

func TestFixedWindowTagsHardBreakBeforeBlankLine(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0)
	doc := "abcd\n\nnext paragraph continues on"
	chunks, err := c.Chunk(context.Background(), doc, 4)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.True(t, chunks[0].HardBreakAfter)
}

func TestFixedWindowNoHardBreakMidParagraph(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0)
	doc := "abcd continuing right along with no break at all here"
	chunks, err := c.Chunk(context.Background(), doc, 4)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.False(t, chunks[0].HardBreakAfter)
}

func TestFixedWindowSingleChunkFitsWhole(t *testing.T) {
	c := chunker.NewFixedWindow(charMeter{}, 0.25)
	chunks, err := c.Chunk(context.Background(), "short", 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "short", chunks[0].Text)
	require.Equal(t, 0, chunks[0].Start)
	require.Equal(t, 5, chunks[0].End)
}

type stubBoundaryModel struct {
	responses []string
	calls     int
}

func (s *stubBoundaryModel) ProposeBoundary(_ context.Context, _ string) (string, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func boundaryJSON(cut, next int) string {
	b, _ := json.Marshal(map[string]int{"cut_index": cut, "next_chunk_start_index": next})
	return string(b)
}

func TestLLMBoundaryHonorsModelProposal(t *testing.T) {
	model := &stubBoundaryModel{responses: []string{boundaryJSON(5, 3)}}
	c := chunker.NewLLMBoundary(charMeter{}, model, 0.1)

	chunks, err := c.Chunk(context.Background(), "abcdefghij", 6)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.Equal(t, "abcde", chunks[0].Text)
	require.Equal(t, 0, chunks[0].Start)
	require.Equal(t, 5, chunks[0].End)
}

func TestLLMBoundaryClampsOutOfRangeResponse(t *testing.T) {
	model := &stubBoundaryModel{responses: []string{boundaryJSON(999, 999)}}
	c := chunker.NewLLMBoundary(charMeter{}, model, 0.1)

	doc := "abcdefghij"
	chunks, err := c.Chunk(context.Background(), doc, 4)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.LessOrEqual(t, chunks[0].End, len(doc))
	// The stub repeats its out-of-range reply at every step; each of the six
	// steps before the 4-byte tail fits is clamped once.
	require.Equal(t, 6, c.ClampCount)
}

func TestLLMBoundaryFallsBackOnModelError(t *testing.T) {
	model := &errorBoundaryModel{}
	c := chunker.NewLLMBoundary(charMeter{}, model, 0.25)

	chunks, err := c.Chunk(context.Background(), "abcdefghij", 4)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.Equal(t, "abcd", chunks[0].Text)
}

type errorBoundaryModel struct{}

func (errorBoundaryModel) ProposeBoundary(_ context.Context, _ string) (string, error) {
	return "", context.DeadlineExceeded
}
