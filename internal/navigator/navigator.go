// Package navigator is the stateless tool surface an agent calls to inspect,
// descend, and read the persisted summary tree. Every operation returns a
// string meant for a language model to read and never raises to the caller
// (spec.md §4.9).
package navigator

import (
	"context"
	"fmt"
	"strings"

	"docmind/internal/store"
	"docmind/internal/summarizer"
)

// SubAgent answers a single question against a single chunk's text, with no
// state carried between calls (spec.md §4.10).
type SubAgent interface {
	Answer(ctx context.Context, chunkText, question string) (string, error)
}

// Navigator exposes the four operations an agent calls over one store.
type Navigator struct {
	Store    *store.Store
	SubAgent SubAgent
}

// New builds a Navigator over store, spawning sub-agents through spawn for
// leaf reads.
func New(st *store.Store, spawn SubAgent) *Navigator {
	return &Navigator{Store: st, SubAgent: spawn}
}

// InspectDocumentHierarchy lists the roots, one per line.
func (n *Navigator) InspectDocumentHierarchy(ctx context.Context) string {
	roots, err := n.Store.Roots(ctx)
	if err != nil {
		return fmt.Sprintf("error reading roots: %v", err)
	}
	if len(roots) == 0 {
		return "index is empty"
	}

	var b strings.Builder
	for _, r := range roots {
		fmt.Fprintf(&b, "(%d, %s)\n", r.ID, r.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExamineSummaryNode branches on id's level. Internal nodes return their own
// text plus their children; leaves either ask for a query or spawn a
// sub-agent on the linked chunk.
func (n *Navigator) ExamineSummaryNode(ctx context.Context, id int64, query string) string {
	md, err := n.Store.NodeMetadata(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Sprintf("no such node: %d", id)
		}
		return fmt.Sprintf("error reading node %d: %v", id, err)
	}

	if md.Level > 0 {
		children, err := n.Store.Children(ctx, id)
		if err != nil {
			return fmt.Sprintf("error reading children of %d: %v", id, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", md.Text)
		for _, c := range children {
			fmt.Fprintf(&b, "(%d, %s)\n", c.ID, c.Text)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if strings.TrimSpace(query) == "" {
		return "this is a leaf node; pass a question to read its underlying text"
	}

	chunkID, err := n.Store.ChunkIDOf(ctx, id)
	if err != nil || chunkID == nil {
		return fmt.Sprintf("leaf node %d has no linked chunk", id)
	}
	chunkText, err := n.Store.ChunkText(ctx, *chunkID)
	if err != nil || chunkText == nil {
		return fmt.Sprintf("leaf node %d's chunk could not be read", id)
	}

	answer, err := n.SubAgent.Answer(ctx, *chunkText, query)
	if err != nil {
		return summarizer.WrapSubAgentAnswer(sentinelFallback)
	}
	return summarizer.WrapSubAgentAnswer(answer)
}

const sentinelFallback = "the sub-agent could not answer"

// ReadNeighborNode returns the text of the adjacent node in direction
// (next, prev, parent), or a "no such neighbor" message at an edge.
func (n *Navigator) ReadNeighborNode(ctx context.Context, currentID int64, direction string) string {
	neigh, err := n.Store.Adjacent(ctx, currentID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Sprintf("no such node: %d", currentID)
		}
		return fmt.Sprintf("error reading neighbors of %d: %v", currentID, err)
	}

	var target *store.IDText
	switch direction {
	case "next":
		target = neigh.Next
	case "prev":
		target = neigh.Prev
	case "parent":
		target = neigh.Parent
	default:
		return fmt.Sprintf("unknown direction %q; expected next, prev, or parent", direction)
	}

	if target == nil {
		return "no such neighbor"
	}
	return target.Text
}

// SearchSummaries performs a case-sensitive substring search over all
// summary texts, returning (id, level, snippet) rows.
func (n *Navigator) SearchSummaries(ctx context.Context, query string, limit int) string {
	if limit <= 0 {
		limit = 10
	}
	hits, err := n.Store.Search(ctx, query, limit)
	if err != nil {
		return fmt.Sprintf("error searching: %v", err)
	}
	if len(hits) == 0 {
		return "no matches"
	}

	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "(%d, %d, %s)\n", h.ID, h.Level, h.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
