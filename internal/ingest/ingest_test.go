package ingest_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docmind/internal/chunker"
	"docmind/internal/ingest"
	"docmind/internal/store"
)

// fixedChunks splits text into n equal-ish pieces, ignoring maxTokens, so
// tests can pin the exact chunk count a scenario needs.
type fixedChunks struct{ n int }

func (f fixedChunks) Chunk(_ context.Context, text string, _ int) ([]chunker.Chunk, error) {
	if text == "" {
		return nil, nil
	}
	size := len(text) / f.n
	if size == 0 {
		size = 1
	}
	var out []chunker.Chunk
	pos := 0
	for pos < len(text) {
		end := pos + size
		if end > len(text) || len(out) == f.n-1 {
			end = len(text)
		}
		out = append(out, chunker.Chunk{Text: text[pos:end], Start: pos, End: end})
		pos = end
	}
	return out, nil
}

// hardBreakChunks returns one chunk per rune of text, tagging a
// HardBreakAfter at the given zero-based chunk indices, so tests can pin an
// exact structural-boundary layout independent of any real detection logic.
type hardBreakChunks struct{ breaksAfter map[int]bool }

func (h hardBreakChunks) Chunk(_ context.Context, text string, _ int) ([]chunker.Chunk, error) {
	var out []chunker.Chunk
	for i, r := range []rune(text) {
		out = append(out, chunker.Chunk{
			Text:           string(r),
			Start:          i,
			End:            i + 1,
			HardBreakAfter: h.breaksAfter[i],
		})
	}
	return out, nil
}

type echoSummarizer struct {
	mu    sync.Mutex
	calls int
}

func (e *echoSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return fmt.Sprintf("summary-of(%d bytes)", len(prompt)), nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIngestScenarioTwelveChunksGroupFive(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, fixedChunks{n: 12}, &echoSummarizer{})

	text := ""
	for i := 0; i < 120; i++ {
		text += "x"
	}

	result, err := in.Ingest(ctx, text, ingest.Params{
		MaxChunkTokens: 1000,
		GroupSize:      5,
		MaxDepth:       1,
		FileSource:     "doc.txt",
	})
	require.NoError(t, err)
	require.Equal(t, 12, result.ChunkCount)
	require.Equal(t, 12, result.LeafCount)
	require.Equal(t, 1, result.LevelsBuilt)
	require.Len(t, result.RootIDs, 3)

	roots, err := st.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 3)

	firstChildren, err := st.Children(ctx, roots[0].ID)
	require.NoError(t, err)
	require.Len(t, firstChildren, 5)

	thirdChildren, err := st.Children(ctx, roots[2].ID)
	require.NoError(t, err)
	require.Len(t, thirdChildren, 2)
}

func TestIngestEmptyDocumentProducesNothing(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, fixedChunks{n: 1}, &echoSummarizer{})

	result, err := in.Ingest(ctx, "", ingest.Params{MaxChunkTokens: 100, GroupSize: 5, MaxDepth: 2})
	require.NoError(t, err)
	require.Equal(t, 0, result.ChunkCount)

	level, err := st.MaxLevel(ctx)
	require.NoError(t, err)
	require.Nil(t, level)
}

func TestIngestSingleChunkNoHierarchy(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, fixedChunks{n: 1}, &echoSummarizer{})

	result, err := in.Ingest(ctx, "a single short document", ingest.Params{MaxChunkTokens: 1000, GroupSize: 5, MaxDepth: 3})
	require.NoError(t, err)
	require.Equal(t, 1, result.ChunkCount)
	require.Equal(t, 0, result.LevelsBuilt)
	require.Len(t, result.RootIDs, 1)

	md, err := st.NodeMetadata(ctx, result.RootIDs[0])
	require.NoError(t, err)
	require.Equal(t, 0, md.Level)
}

func TestIngestMaxDepthZeroLeavesAreRoots(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, fixedChunks{n: 4}, &echoSummarizer{})

	result, err := in.Ingest(ctx, "abcdefghijklmnop", ingest.Params{MaxChunkTokens: 1000, GroupSize: 2, MaxDepth: 0})
	require.NoError(t, err)
	require.Equal(t, 0, result.LevelsBuilt)
	require.Len(t, result.RootIDs, 4)

	roots, err := st.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 4)
}

func TestIngestGroupSizeOneTerminatesAtMaxDepth(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, fixedChunks{n: 3}, &echoSummarizer{})

	result, err := in.Ingest(ctx, "abcdefghi", ingest.Params{MaxChunkTokens: 1000, GroupSize: 1, MaxDepth: 2})
	require.NoError(t, err)
	require.Equal(t, 2, result.LevelsBuilt)
	require.Len(t, result.RootIDs, 3)
}

func TestIngestRespectsHardBreaksInFirstLevelBatching(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	// 6 leaves, a hard break after index 1 (0-based), group_size 5: without
	// break-respecting batching this would be one batch of 5 plus one of 1;
	// with it, the break forces a flush after leaf 1, giving batches of 2
	// and 4.
	in := ingest.New(st, hardBreakChunks{breaksAfter: map[int]bool{1: true}}, &echoSummarizer{})

	result, err := in.Ingest(ctx, "abcdef", ingest.Params{
		MaxChunkTokens:    1000,
		GroupSize:         5,
		MaxDepth:          1,
		RespectHardBreaks: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.LevelsBuilt)
	require.Len(t, result.RootIDs, 2)

	roots, err := st.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 2)

	firstChildren, err := st.Children(ctx, roots[0].ID)
	require.NoError(t, err)
	require.Len(t, firstChildren, 2)

	secondChildren, err := st.Children(ctx, roots[1].ID)
	require.NoError(t, err)
	require.Len(t, secondChildren, 4)
}

func TestIngestIgnoresHardBreaksWhenNotRequested(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, hardBreakChunks{breaksAfter: map[int]bool{1: true}}, &echoSummarizer{})

	result, err := in.Ingest(ctx, "abcdef", ingest.Params{
		MaxChunkTokens: 1000,
		GroupSize:      5,
		MaxDepth:       1,
	})
	require.NoError(t, err)
	require.Len(t, result.RootIDs, 2)

	roots, err := st.Roots(ctx)
	require.NoError(t, err)
	firstChildren, err := st.Children(ctx, roots[0].ID)
	require.NoError(t, err)
	require.Len(t, firstChildren, 5)
}

func TestIngestOrderFidelitySequenceIndexMatchesChunkOrder(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	in := ingest.New(st, fixedChunks{n: 5}, &echoSummarizer{})

	_, err := in.Ingest(ctx, "abcdefghijklmno", ingest.Params{MaxChunkTokens: 1000, GroupSize: 5, MaxDepth: 1})
	require.NoError(t, err)

	roots, err := st.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	children, err := st.Children(ctx, roots[0].ID)
	require.NoError(t, err)
	require.Len(t, children, 5)
	for i, c := range children {
		chunkID, err := st.ChunkIDOf(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, chunkID)
		require.Equal(t, int64(i+1), *chunkID)
	}
}
