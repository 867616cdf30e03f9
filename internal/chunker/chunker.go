// Package chunker slices a document into token-bounded pieces, in document
// order, using one of two interchangeable strategies.
package chunker

import "context"

// Chunk is a contiguous slice of a document, with its character offsets in
// the source text.
type Chunk struct {
	Text  string
	Start int
	End   int

	// HardBreakAfter marks that the document has a structural boundary (a
	// Markdown heading or a blank-line paragraph break) right after this
	// chunk ends. Ingestion's batching may use it to avoid folding two
	// structurally separate runs of chunks into one synthesis batch; it has
	// no effect on cut positions, overlap, or coverage.
	HardBreakAfter bool
}

// Chunker produces a single-pass, in-order sequence of chunks covering a
// document from offset 0 to its end, every chunk satisfying a token cap.
// Implementations must terminate on any input, including the empty string.
type Chunker interface {
	Chunk(ctx context.Context, text string, maxTokens int) ([]Chunk, error)
}
