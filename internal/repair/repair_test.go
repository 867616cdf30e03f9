package repair_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"docmind/internal/repair"
	"docmind/internal/sentinel"
	"docmind/internal/store"
)

type echoSummarizer struct{ calls int }

func (e *echoSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	e.calls++
	return fmt.Sprintf("regenerated(%d)", len(prompt)), nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestValidateAndRepairCleansCodeFence(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.AddSummary(ctx, "```json\n{\"x\":1}\n```", 0, nil, 0)
	require.NoError(t, err)

	report, err := repair.Validate(ctx, st)
	require.NoError(t, err)
	require.Len(t, report.CodeFence, 1)

	r := repair.New(st, &echoSummarizer{}, 5, 2)
	counts, err := r.Repair(ctx, report, false)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Cleaned)
	require.Equal(t, 0, counts.Regen)

	broken, err := st.BrokenSummaries(ctx)
	require.NoError(t, err)
	require.Empty(t, broken.CodeFence)
}

func TestRepairRegeneratesProviderErrors(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := st.AddSummary(ctx, sentinel.ProviderError, 0, nil, i)
		require.NoError(t, err)
	}

	report, err := repair.Validate(ctx, st)
	require.NoError(t, err)
	require.Len(t, report.ProviderError, 3)

	r := repair.New(st, &echoSummarizer{}, 5, 2)
	counts, err := r.Repair(ctx, report, false)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Regen)
	require.Equal(t, 0, counts.Failed)

	broken, err := st.BrokenSummaries(ctx)
	require.NoError(t, err)
	require.Empty(t, broken.ProviderError)
}

func TestRepairFillsMissingLevelZero(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	var chunkIDs []int64
	for i := 0; i < 8; i++ {
		id, err := st.AddChunk(ctx, fmt.Sprintf("chunk %d", i), i*10, i*10+10, "doc.txt")
		require.NoError(t, err)
		chunkIDs = append(chunkIDs, id)
	}
	for i, id := range chunkIDs {
		if i == 7 {
			continue // chunk #7 deliberately has no level-0 node
		}
		node, err := st.AddSummary(ctx, fmt.Sprintf("summary %d", i), 0, nil, i)
		require.NoError(t, err)
		require.NoError(t, st.LinkSummaryToChunk(ctx, node, id))
	}

	report, err := repair.Validate(ctx, st)
	require.NoError(t, err)
	require.Len(t, report.MissingLevel0, 1)
	require.Equal(t, chunkIDs[7], report.MissingLevel0[0].ID)

	r := repair.New(st, &echoSummarizer{}, 5, 2)
	counts, err := r.Repair(ctx, report, false)
	require.NoError(t, err)
	require.Equal(t, 1, counts.FilledLeaf)

	missing, err := st.ChunksWithoutSummary(ctx)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestDryRunReportsCountsWithoutMutating(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.AddSummary(ctx, "```\nfenced\n```", 0, nil, 0)
	require.NoError(t, err)

	report, err := repair.Validate(ctx, st)
	require.NoError(t, err)

	r := repair.New(st, &echoSummarizer{}, 5, 2)
	counts, err := r.Repair(ctx, report, true)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Cleaned)

	broken, err := st.BrokenSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, broken.CodeFence, 1, "dry run must not mutate")
}

func TestRepairIsIdempotentOnCleanStore(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.AddSummary(ctx, "a perfectly clean summary", 0, nil, 0)
	require.NoError(t, err)

	r := repair.New(st, &echoSummarizer{}, 5, 2)

	report, err := repair.Validate(ctx, st)
	require.NoError(t, err)
	counts, err := r.Repair(ctx, report, false)
	require.NoError(t, err)
	require.Equal(t, repair.Counts{}, counts)

	report2, err := repair.Validate(ctx, st)
	require.NoError(t, err)
	counts2, err := r.Repair(ctx, report2, false)
	require.NoError(t, err)
	require.Equal(t, repair.Counts{}, counts2)
}

func TestExtendHierarchyBuildsFromOrphans(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	for i := 0; i < 6; i++ {
		_, err := st.AddSummary(ctx, fmt.Sprintf("orphan %d", i), 0, nil, i)
		require.NoError(t, err)
	}

	report, err := repair.Validate(ctx, st)
	require.NoError(t, err)
	require.Len(t, report.OrphanSummaryIDs, 6)

	r := repair.New(st, &echoSummarizer{}, 3, 2)
	counts, err := r.Repair(ctx, report, false)
	require.NoError(t, err)
	require.Equal(t, 2, counts.Extended)

	roots, err := st.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
}
