package chunker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel/metric"

	"docmind/internal/telemetry"
	"docmind/internal/tokenmeter"
)

var (
	clampCounterOnce sync.Once
	clampCounter     metric.Int64Counter
)

// clampMetric lazily builds the chunker.boundary_clamps_total counter,
// incremented whenever a model's proposed boundary had to be corrected.
func clampMetric() metric.Int64Counter {
	clampCounterOnce.Do(func() {
		c, err := telemetry.Meter().Int64Counter(
			"chunker.boundary_clamps_total",
			metric.WithDescription("count of LLM-boundary responses that required clamping into range"),
		)
		if err != nil {
			c, _ = telemetry.Meter().Int64Counter("chunker.boundary_clamps_total")
		}
		clampCounter = c
	})
	return clampCounter
}

// BoundaryModel is the minimal capability the LLM-boundary strategy needs
// from a model call: given a text window, propose where to cut it. Kept
// separate from llmclient.Provider so the chunker has no dependency on the
// concrete summarization stack (spec.md §9's "small interfaces" note).
type BoundaryModel interface {
	ProposeBoundary(ctx context.Context, window string) (raw string, err error)
}

// defaultOverlapChars is the fallback character overlap used when a
// proposed next-start index is clamped for being at or past the cut.
const defaultOverlapChars = 20

type boundaryResponse struct {
	CutIndex            int `json:"cut_index"`
	NextChunkStartIndex int `json:"next_chunk_start_index"`
}

// LLMBoundary offers the model a token-capped window and asks for a cut
// index and a next-chunk start index into that window (spec.md §4.3).
// Out-of-range indices are clamped into the window; a model call or parse
// failure falls back to FixedWindow behavior for that step.
type LLMBoundary struct {
	Meter    tokenmeter.Meter
	Model    BoundaryModel
	fallback *FixedWindow

	// ClampCount counts how often a model response required clamping,
	// surfaced as a warning metric per spec.md §9's open question.
	ClampCount int
}

// NewLLMBoundary builds an LLM-boundary strategy with the given fallback
// overlap ratio used when the model must be bypassed for a step.
func NewLLMBoundary(meter tokenmeter.Meter, model BoundaryModel, fallbackOverlapRatio float64) *LLMBoundary {
	return &LLMBoundary{
		Meter:    meter,
		Model:    model,
		fallback: NewFixedWindow(meter, fallbackOverlapRatio),
	}
}

func (l *LLMBoundary) Chunk(ctx context.Context, text string, maxTokens int) ([]Chunk, error) {
	if text == "" {
		return nil, nil
	}
	if maxTokens <= 0 {
		maxTokens = 1
	}

	var chunks []Chunk
	pos := 0
	for pos < len(text) {
		remaining := text[pos:]

		if l.Meter.Count(remaining) <= maxTokens {
			chunks = append(chunks, Chunk{Text: remaining, Start: pos, End: len(text)})
			break
		}

		charWindow := maxTokens * windowOvershoot
		window := l.Meter.TruncateTo(extendToRuneBoundary(remaining, charWindow), maxTokens)
		if window == "" {
			_, size := utf8.DecodeRuneInString(remaining)
			window = remaining[:size]
		}
		windowLen := len(window)

		cutIdx, nextStart, ok := l.proposeBoundary(ctx, window, windowLen)
		if !ok {
			step, err := l.fallback.Chunk(ctx, remaining, maxTokens)
			if err != nil || len(step) == 0 {
				return chunks, err
			}
			first := step[0]
			chunks = append(chunks, Chunk{Text: first.Text, Start: pos + first.Start, End: pos + first.End})
			if pos+first.End >= len(text) {
				break
			}
			pos += first.End
			continue
		}

		cutIdx = runeBoundaryIndex(window, cutIdx)
		if cutIdx == 0 {
			_, size := utf8.DecodeRuneInString(window)
			cutIdx = size
		}
		chunkText := window[:cutIdx]
		end := pos + cutIdx
		chunks = append(chunks, Chunk{Text: chunkText, Start: pos, End: end})
		if end >= len(text) {
			break
		}

		nextStart = runeBoundaryIndex(window, nextStart)
		if nextStart <= 0 {
			nextStart = 1
		}
		pos += nextStart
	}
	return chunks, nil
}

// proposeBoundary calls the model once and clamps its answer into range.
// ok is false when the model call or parse fails outright, signaling the
// caller to fall back to fixed-window behavior for this step.
func (l *LLMBoundary) proposeBoundary(ctx context.Context, window string, windowLen int) (cutIndex, nextStart int, ok bool) {
	raw, err := l.Model.ProposeBoundary(ctx, window)
	if err != nil {
		return 0, 0, false
	}

	var resp boundaryResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return 0, 0, false
	}

	cut := resp.CutIndex
	next := resp.NextChunkStartIndex

	clamped := false
	if cut < 0 || cut > windowLen {
		if cut < 0 {
			cut = 0
		} else {
			cut = windowLen
		}
		clamped = true
	}
	if next < 0 || next >= cut {
		next = cut - defaultOverlapChars
		if next < 0 {
			next = 0
		}
		clamped = true
	}
	if clamped {
		l.ClampCount++
		clampMetric().Add(ctx, 1)
	}
	return cut, next, true
}

// extractJSON trims a response down to its outermost JSON object, tolerant
// of stray prose or a code-fence wrapper around it.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// runeBoundaryIndex clamps n into [0, len(s)] and nudges it backward onto a
// valid UTF-8 rune boundary.
func runeBoundaryIndex(s string, n int) int {
	if n < 0 {
		n = 0
	}
	if n > len(s) {
		n = len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
