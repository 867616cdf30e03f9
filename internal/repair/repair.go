// Package repair validates an existing store against the sentinel-pollution
// and structural-gap taxonomy and heals it in place, without re-chunking
// (spec.md §4.8).
package repair

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"docmind/internal/sentinel"
	"docmind/internal/store"
	"docmind/internal/summarizer"
	"docmind/internal/telemetry"
)

var (
	stageLatencyOnce sync.Once
	stageLatency     metric.Float64Histogram
)

// stageHistogram lazily builds the repair.stage_duration_seconds histogram
// against the process-wide meter, mirroring internal/ingest's stage
// instrumentation so ingest and repair cost is visible the same way.
func stageHistogram() metric.Float64Histogram {
	stageLatencyOnce.Do(func() {
		h, err := telemetry.Meter().Float64Histogram(
			"repair.stage_duration_seconds",
			metric.WithDescription("wall-clock duration of one repair phase"),
			metric.WithUnit("s"),
		)
		if err != nil {
			h, _ = telemetry.Meter().Float64Histogram("repair.stage_duration_seconds")
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

// Summarizer is the narrowed capability repair needs from
// summarizer.Service, mirroring ingest.Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Report classifies the store's current state.
type Report struct {
	ProviderError    []store.IDText
	ControlTokens    []store.IDText
	CodeFence        []store.IDText
	MissingLevel0    []store.IDText
	OrphanSummaryIDs []int64
	CurrentMaxLevel  *int
}

// Validate scans the store and returns its classification, per spec.md
// §4.8's five categories plus the current max level.
func Validate(ctx context.Context, st *store.Store) (Report, error) {
	broken, err := st.BrokenSummaries(ctx)
	if err != nil {
		return Report{}, err
	}
	missing, err := st.ChunksWithoutSummary(ctx)
	if err != nil {
		return Report{}, err
	}
	orphans, err := st.OrphanSummaries(ctx)
	if err != nil {
		return Report{}, err
	}
	maxLevel, err := st.MaxLevel(ctx)
	if err != nil {
		return Report{}, err
	}

	return Report{
		ProviderError:    broken.ProviderError,
		ControlTokens:    broken.ControlTokens,
		CodeFence:        broken.CodeFence,
		MissingLevel0:    missing,
		OrphanSummaryIDs: orphans,
		CurrentMaxLevel:  maxLevel,
	}, nil
}

// Counts reports how many nodes each repair phase touched.
type Counts struct {
	Cleaned    int
	Regen      int
	Failed     int
	FilledLeaf int
	Extended   int
}

// Repairer composes a store and a summarization service to heal the
// failure/gap categories Validate reports, in four phases.
type Repairer struct {
	Store     *store.Store
	Summ      Summarizer
	GroupSize int
	MaxDepth  int
}

// New builds a Repairer.
func New(st *store.Store, summ Summarizer, groupSize, maxDepth int) *Repairer {
	if groupSize < 1 {
		groupSize = 1
	}
	return &Repairer{Store: st, Summ: summ, GroupSize: groupSize, MaxDepth: maxDepth}
}

// Repair runs all four phases against report. dryRun reports counts without
// mutating anything.
func (r *Repairer) Repair(ctx context.Context, report Report, dryRun bool) (Counts, error) {
	var counts Counts

	cleaned, err := r.clean(ctx, report, dryRun)
	if err != nil {
		return counts, err
	}
	counts.Cleaned = cleaned

	regen, failed, err := r.regenerate(ctx, report, dryRun)
	if err != nil {
		return counts, err
	}
	counts.Regen = regen
	counts.Failed = failed

	filled, err := r.fillLeaves(ctx, report, dryRun)
	if err != nil {
		return counts, err
	}
	counts.FilledLeaf = filled

	extended, err := r.extendHierarchy(ctx, dryRun)
	if err != nil {
		return counts, err
	}
	counts.Extended = extended

	return counts, nil
}

// clean runs the sanitizer over control_tokens and code_fence nodes; no LLM
// calls, phase 1.
func (r *Repairer) clean(ctx context.Context, report Report, dryRun bool) (int, error) {
	defer recordStage(ctx, "clean", time.Now())

	count := 0
	for _, nodes := range [][]store.IDText{report.ControlTokens, report.CodeFence} {
		for _, n := range nodes {
			cleaned := sentinel.Sanitize(n.Text)
			if cleaned == n.Text {
				continue
			}
			count++
			if dryRun {
				continue
			}
			if err := r.Store.UpdateSummaryText(ctx, n.ID, cleaned); err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

// regenerate re-summarizes provider_error nodes from their original
// context, in parallel, phase 2.
func (r *Repairer) regenerate(ctx context.Context, report Report, dryRun bool) (regen, failed int, err error) {
	defer recordStage(ctx, "regenerate", time.Now())

	if len(report.ProviderError) == 0 {
		return 0, 0, nil
	}
	if dryRun {
		return len(report.ProviderError), 0, nil
	}

	results := make([]string, len(report.ProviderError))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range report.ProviderError {
		i, n := i, n
		g.Go(func() error {
			sc, err := r.Store.SummaryWithContext(gctx, n.ID)
			if err != nil {
				return err
			}
			prompt := promptFromContext(sc)
			out, err := r.Summ.Summarize(gctx, prompt)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	for i, n := range report.ProviderError {
		out := results[i]
		if sentinel.HasProviderError(out) {
			failed++
			continue
		}
		if err := r.Store.UpdateSummaryText(ctx, n.ID, out); err != nil {
			return regen, failed, err
		}
		regen++
	}
	return regen, failed, nil
}

// fillLeaves summarizes each chunk missing a level-0 node, in parallel, and
// inserts it with a sequence index continuing existing level-0 ordering,
// phase 3.
func (r *Repairer) fillLeaves(ctx context.Context, report Report, dryRun bool) (int, error) {
	defer recordStage(ctx, "fill_leaves", time.Now())

	if len(report.MissingLevel0) == 0 {
		return 0, nil
	}
	if dryRun {
		return len(report.MissingLevel0), nil
	}

	results := make([]string, len(report.MissingLevel0))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range report.MissingLevel0 {
		i, chunk := i, chunk
		g.Go(func() error {
			out, err := r.Summ.Summarize(gctx, summarizer.LeafPrompt(chunk.Text))
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for i, chunk := range report.MissingLevel0 {
		// Chunk ids are assigned by AUTOINCREMENT starting at 1 in document
		// order, so id-1 is the chunk's 0-based ordinal — and therefore the
		// sequence_index a clean ingest would have given its level-0 node.
		seq := int(chunk.ID) - 1
		nodeID, err := r.Store.AddSummary(ctx, results[i], 0, nil, seq)
		if err != nil {
			return i, err
		}
		if err := r.Store.LinkSummaryToChunk(ctx, nodeID, chunk.ID); err != nil {
			return i, err
		}
	}
	return len(report.MissingLevel0), nil
}

// extendHierarchy repeats ingestion's Phase C starting from the current
// orphans, while more than one remains and the depth cap allows it, phase 4.
func (r *Repairer) extendHierarchy(ctx context.Context, dryRun bool) (int, error) {
	defer recordStage(ctx, "extend_hierarchy", time.Now())

	if dryRun {
		return r.planExtendHierarchy(ctx)
	}

	levelsBuilt := 0
	for {
		orphans, err := r.Store.OrphanSummaries(ctx)
		if err != nil {
			return levelsBuilt, err
		}
		maxLevel, err := r.Store.MaxLevel(ctx)
		if err != nil {
			return levelsBuilt, err
		}
		if len(orphans) <= 1 || maxLevel == nil || *maxLevel >= r.MaxDepth {
			break
		}

		texts, err := r.Store.SummariesText(ctx, orphans)
		if err != nil {
			return levelsBuilt, err
		}
		batches := batchIDs(orphans, r.GroupSize)
		byID := make(map[int64]string, len(orphans))
		for i, id := range orphans {
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
				out, err := r.Summ.Summarize(gctx, summarizer.SynthesisPrompt(batchTexts))
				if err != nil {
					return err
				}
				synthesized[j] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return levelsBuilt, err
		}

		newLevel := *maxLevel + 1
		for j, batch := range batches {
			parentID, err := r.Store.AddSummary(ctx, synthesized[j], newLevel, nil, j)
			if err != nil {
				return levelsBuilt, err
			}
			for _, childID := range batch {
				if err := r.Store.UpdateSummaryParent(ctx, childID, parentID); err != nil {
					return levelsBuilt, err
				}
			}
		}
		levelsBuilt++
	}
	return levelsBuilt, nil
}

// planExtendHierarchy counts how many synthesis levels a real run would
// build, purely from orphan counts and group size, without calling the
// summarizer or mutating the store.
func (r *Repairer) planExtendHierarchy(ctx context.Context) (int, error) {
	orphans, err := r.Store.OrphanSummaries(ctx)
	if err != nil {
		return 0, err
	}
	maxLevel, err := r.Store.MaxLevel(ctx)
	if err != nil {
		return 0, err
	}
	if maxLevel == nil {
		return 0, nil
	}

	count := len(orphans)
	level := *maxLevel
	levels := 0
	for count > 1 && level < r.MaxDepth {
		count = (count + r.GroupSize - 1) / r.GroupSize
		level++
		levels++
	}
	return levels, nil
}

func promptFromContext(sc store.SummaryContext) string {
	if sc.Level == 0 {
		text := ""
		if sc.ChunkText != nil {
			text = *sc.ChunkText
		}
		return summarizer.LeafPrompt(text)
	}
	return summarizer.SynthesisPrompt(sc.ChildTexts)
}

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
