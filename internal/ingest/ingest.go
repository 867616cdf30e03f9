// Package ingest drives the three-phase ingestion pipeline: chunk, leaf
// summarization, and level-by-level parent synthesis, all persisted in
// input order under the store's write lock (spec.md §4.7).
package ingest

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"docmind/internal/chunker"
	"docmind/internal/store"
	"docmind/internal/summarizer"
	"docmind/internal/telemetry"
)

var (
	stageLatencyOnce sync.Once
	stageLatency     metric.Float64Histogram
)

// stageHistogram lazily builds the ingest.stage_duration_seconds histogram
// against the process-wide meter, recording one observation per phase per
// Ingest call, tagged by phase name.
func stageHistogram() metric.Float64Histogram {
	stageLatencyOnce.Do(func() {
		h, err := telemetry.Meter().Float64Histogram(
			"ingest.stage_duration_seconds",
			metric.WithDescription("wall-clock duration of one ingestion phase"),
			metric.WithUnit("s"),
		)
		if err != nil {
			h, _ = telemetry.Meter().Float64Histogram("ingest.stage_duration_seconds")
		}
		stageLatency = h
	})
	return stageLatency
}

func recordStage(ctx context.Context, phase string, start time.Time) {
	stageHistogram().Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("phase", phase),
	))
}

// Params configures one ingestion run.
type Params struct {
	MaxChunkTokens int
	GroupSize      int
	MaxDepth       int
	FileSource     string

	// RespectHardBreaks, off by default, makes Phase C's first batching pass
	// (leaves into level-1 parents) avoid folding two chunks separated by a
	// chunker-reported structural boundary into the same synthesis batch,
	// even when group_size would otherwise span them. It never increases a
	// batch past group_size, only shrinks one early; sequence indices,
	// levels, and every other Phase C behavior are unaffected.
	RespectHardBreaks bool
}

// Summarizer is the single capability the ingester needs from
// summarizer.Service, narrowed to an interface so tests can inject a fake
// without constructing a real credential pool and rotator (spec.md §9's
// "explicitly threaded values" note).
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Ingester orchestrates chunking, leaf summarization, and hierarchy
// construction against one store.
type Ingester struct {
	Store   *store.Store
	Chunker chunker.Chunker
	Summ    Summarizer
}

// New builds an Ingester over the given store, chunking strategy, and
// summarization service.
func New(st *store.Store, chunk chunker.Chunker, summ Summarizer) *Ingester {
	return &Ingester{Store: st, Chunker: chunk, Summ: summ}
}

// Result reports the shape of the tree an ingestion run produced.
type Result struct {
	ChunkCount  int
	LeafCount   int
	RootIDs     []int64
	LevelsBuilt int
}

// Ingest runs Phase A (chunk), Phase B (leaf summarization), and Phase C
// (recursive synthesis) over text, in that order.
func (in *Ingester) Ingest(ctx context.Context, text string, p Params) (Result, error) {
	chunkIDs, hardBreaks, err := in.phaseA(ctx, text, p)
	if err != nil {
		return Result{}, err
	}
	if len(chunkIDs) == 0 {
		return Result{}, nil
	}

	leafIDs, err := in.phaseB(ctx, chunkIDs)
	if err != nil {
		return Result{}, err
	}

	if !p.RespectHardBreaks {
		hardBreaks = nil
	}
	roots, levels, err := in.phaseC(ctx, leafIDs, p.GroupSize, p.MaxDepth, hardBreaks)
	if err != nil {
		return Result{}, err
	}

	return Result{
		ChunkCount:  len(chunkIDs),
		LeafCount:   len(leafIDs),
		RootIDs:     roots,
		LevelsBuilt: levels,
	}, nil
}

// phaseA drives the chunker over the whole document, persisting each chunk
// in order, single-threaded.
func (in *Ingester) phaseA(ctx context.Context, text string, p Params) ([]int64, []bool, error) {
	defer recordStage(ctx, "chunk", time.Now())

	chunks, err := in.Chunker.Chunk(ctx, text, p.MaxChunkTokens)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]int64, len(chunks))
	hardBreaks := make([]bool, len(chunks))
	for i, c := range chunks {
		id, err := in.Store.AddChunk(ctx, c.Text, c.Start, c.End, p.FileSource)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = id
		hardBreaks[i] = c.HardBreakAfter
	}
	return ids, hardBreaks, nil
}

// phaseB summarizes all chunks in parallel, through N summarizer workers
// bound by the credential pool, then stitches results back in input order
// so the level-0 sibling ordering invariant holds (spec.md §3, §5).
func (in *Ingester) phaseB(ctx context.Context, chunkIDs []int64) ([]int64, error) {
	defer recordStage(ctx, "leaf_summarize", time.Now())

	texts, err := in.Store.ChunkTexts(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]string, len(chunkIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range chunkIDs {
		i := i
		g.Go(func() error {
			out, err := in.Summ.Summarize(gctx, summarizer.LeafPrompt(texts[i]))
			if err != nil {
				return err
			}
			summaries[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	leafIDs := make([]int64, len(chunkIDs))
	for i, chunkID := range chunkIDs {
		nodeID, err := in.Store.AddSummary(ctx, summaries[i], 0, nil, i)
		if err != nil {
			return nil, err
		}
		if err := in.Store.LinkSummaryToChunk(ctx, nodeID, chunkID); err != nil {
			return nil, err
		}
		leafIDs[i] = nodeID
	}
	return leafIDs, nil
}

// phaseC builds the hierarchy above the leaves level by level, bounded by
// maxDepth levels above level 0, batching groupSize siblings per parent.
func (in *Ingester) phaseC(ctx context.Context, leafIDs []int64, groupSize, maxDepth int, leafHardBreaks []bool) ([]int64, int, error) {
	defer recordStage(ctx, "synthesize", time.Now())

	if groupSize < 1 {
		groupSize = 1
	}

	currentIDs := leafIDs
	currentLevel := 0
	levelsBuilt := 0

	for len(currentIDs) > 1 && levelsBuilt < maxDepth {
		var batches [][]int64
		if currentLevel == 0 && len(leafHardBreaks) == len(currentIDs) {
			batches = batchIDsRespectingBreaks(currentIDs, leafHardBreaks, groupSize)
		} else {
			batches = batchIDs(currentIDs, groupSize)
		}

		texts, err := in.Store.SummariesText(ctx, currentIDs)
		if err != nil {
			return nil, levelsBuilt, err
		}
		byID := make(map[int64]string, len(currentIDs))
		for i, id := range currentIDs {
			byID[id] = texts[i]
		}

		synthesized := make([]string, len(batches))
		g, gctx := errgroup.WithContext(ctx)
		for j, batch := range batches {
			j, batch := j, batch
			g.Go(func() error {
				batchTexts := make([]string, len(batch))
				for k, id := range batch {
					batchTexts[k] = byID[id]
				}
				out, err := in.Summ.Summarize(gctx, summarizer.SynthesisPrompt(batchTexts))
				if err != nil {
					return err
				}
				synthesized[j] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, levelsBuilt, err
		}

		newLevel := currentLevel + 1
		newIDs := make([]int64, len(batches))
		for j, batch := range batches {
			parentID, err := in.Store.AddSummary(ctx, synthesized[j], newLevel, nil, j)
			if err != nil {
				return nil, levelsBuilt, err
			}
			for _, childID := range batch {
				if err := in.Store.UpdateSummaryParent(ctx, childID, parentID); err != nil {
					return nil, levelsBuilt, err
				}
			}
			newIDs[j] = parentID
		}

		currentIDs = newIDs
		currentLevel = newLevel
		levelsBuilt++
	}

	return currentIDs, levelsBuilt, nil
}

// batchIDsRespectingBreaks partitions ids the same way batchIDs does, except
// it also force-flushes a batch right after any id whose hardBreakAfter flag
// is set, so two structurally separated runs of leaves never land in the
// same synthesis batch. It never produces a batch larger than n, only
// smaller ones at break points.
func batchIDsRespectingBreaks(ids []int64, hardBreakAfter []bool, n int) [][]int64 {
	var batches [][]int64
	var current []int64
	for i, id := range ids {
		current = append(current, id)
		if len(current) >= n || hardBreakAfter[i] {
			batches = append(batches, current)
			current = nil
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// batchIDs partitions ids into consecutive batches of size n, the last
// batch possibly smaller.
func batchIDs(ids []int64, n int) [][]int64 {
	var batches [][]int64
	for i := 0; i < len(ids); i += n {
		end := i + n
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}
