package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"docmind/internal/tokenmeter"
)

// FixedWindow cuts each chunk to exactly the token cap and advances by
// chunk_len * (1 - overlapRatio) characters (spec.md §4.3).
type FixedWindow struct {
	Meter        tokenmeter.Meter
	OverlapRatio float64 // in [0, 1)
}

// NewFixedWindow builds a FixedWindow strategy. overlapRatio outside [0, 1)
// is clamped into range.
func NewFixedWindow(meter tokenmeter.Meter, overlapRatio float64) *FixedWindow {
	if overlapRatio < 0 {
		overlapRatio = 0
	}
	if overlapRatio >= 1 {
		overlapRatio = 0.9
	}
	return &FixedWindow{Meter: meter, OverlapRatio: overlapRatio}
}

// windowOvershoot is the multiplier applied to maxTokens to build a
// character window that's generously large enough for the meter to find a
// maxTokens-token prefix inside it, regardless of the model's bytes-per-token
// ratio.
const windowOvershoot = 8

func (f *FixedWindow) Chunk(_ context.Context, text string, maxTokens int) ([]Chunk, error) {
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

		if f.Meter.Count(remaining) <= maxTokens {
			chunks = append(chunks, Chunk{Text: remaining, Start: pos, End: len(text)})
			break
		}

		charWindow := maxTokens * windowOvershoot
		window := extendToRuneBoundary(remaining, charWindow)
		cut := f.Meter.TruncateTo(window, maxTokens)
		if cut == "" {
			// Guarantee forward progress even for a pathological single
			// oversized token/rune.
			_, size := utf8.DecodeRuneInString(remaining)
			cut = remaining[:size]
		}

		end := pos + len(cut)
		chunks = append(chunks, Chunk{Text: cut, Start: pos, End: end, HardBreakAfter: hasHardBreakAfter(text, end)})
		if end >= len(text) {
			break
		}

		advance := int(float64(len(cut)) * (1 - f.OverlapRatio))
		if advance <= 0 {
			advance = 1
		}
		pos += advance
	}
	return chunks, nil
}

// hardBreakLookahead bounds how far past a chunk's end hasHardBreakAfter
// looks for a structural boundary, so a break many paragraphs away doesn't
// get attributed to an unrelated chunk.
const hardBreakLookahead = 64

// hasHardBreakAfter reports whether a Markdown heading or a blank-line
// paragraph break falls shortly after end, mirroring the heading/paragraph
// boundary checks the corpus's own Markdown-aware chunker uses
// (isHeading: line starts with "#"; isParaBreak: a blank line).
func hasHardBreakAfter(text string, end int) bool {
	limit := end + hardBreakLookahead
	if limit > len(text) {
		limit = len(text)
	}
	window := text[end:limit]
	for i := 0; i < len(window); i++ {
		if window[i] != '\n' {
			continue
		}
		rest := window[i+1:]
		if strings.HasPrefix(rest, "#") || strings.HasPrefix(rest, "\n") {
			return true
		}
	}
	return false
}

// extendToRuneBoundary returns the prefix of s of at least n bytes, widened
// forward to the next UTF-8 rune boundary so the result is always valid
// UTF-8 even when n lands mid-rune.
func extendToRuneBoundary(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n < 0 {
		n = 0
	}
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return s[:n]
}
