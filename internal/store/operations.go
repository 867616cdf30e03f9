package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docmind/internal/sentinel"
)

// AddChunk persists a new chunk and returns its stable id.
func (s *Store) AddChunk(ctx context.Context, text string, start, end int, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (text, start_index, end_index, file_source) VALUES (?, ?, ?, ?)`,
		text, start, end, source)
	if err != nil {
		return 0, fmt.Errorf("add chunk: %w", err)
	}
	return res.LastInsertId()
}

// AddSummary persists a new summary node and returns its stable id.
// parentID may be nil.
func (s *Store) AddSummary(ctx context.Context, text string, level int, parentID *int64, sequenceIndex int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (summary_text, level, parent_id, sequence_index) VALUES (?, ?, ?, ?)`,
		text, level, parentID, sequenceIndex)
	if err != nil {
		return 0, fmt.Errorf("add summary: %w", err)
	}
	return res.LastInsertId()
}

// LinkSummaryToChunk sets the level-0 linkage from a summary node to its
// chunk. Idempotent: re-linking to the same chunk is a no-op in effect.
func (s *Store) LinkSummaryToChunk(ctx context.Context, nodeID, chunkID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE summaries SET chunk_id = ? WHERE id = ?`, chunkID, nodeID)
	if err != nil {
		return fmt.Errorf("link summary %d to chunk %d: %w", nodeID, chunkID, err)
	}
	return nil
}

// UpdateSummaryParent sets a node's parent exactly when it was previously
// null; it returns an error if the node already has a parent, since the
// invariant is that the pointer may be set once (spec.md §3 lifecycle).
func (s *Store) UpdateSummaryParent(ctx context.Context, nodeID, parentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE summaries SET parent_id = ? WHERE id = ? AND parent_id IS NULL`,
		parentID, nodeID)
	if err != nil {
		return fmt.Errorf("update summary %d parent: %w", nodeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update summary %d parent: already has a parent or does not exist", nodeID)
	}
	return nil
}

// UpdateSummaryText overwrites a node's text, used only by repair.
func (s *Store) UpdateSummaryText(ctx context.Context, nodeID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE summaries SET summary_text = ? WHERE id = ?`, text, nodeID)
	if err != nil {
		return fmt.Errorf("update summary %d text: %w", nodeID, err)
	}
	return nil
}

// Roots returns all nodes at the maximum observed level, ordered by
// sequence index.
func (s *Store) Roots(ctx context.Context) ([]IDText, error) {
	maxLevel, err := s.MaxLevel(ctx)
	if err != nil {
		return nil, err
	}
	if maxLevel == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary_text FROM summaries WHERE level = ? ORDER BY sequence_index ASC`, *maxLevel)
	if err != nil {
		return nil, fmt.Errorf("roots: %w", err)
	}
	defer rows.Close()
	return scanIDTexts(rows)
}

// Children returns the nodes with the given parent, ordered by sequence
// index.
func (s *Store) Children(ctx context.Context, parentID int64) ([]IDText, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary_text FROM summaries WHERE parent_id = ? ORDER BY sequence_index ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("children of %d: %w", parentID, err)
	}
	defer rows.Close()
	return scanIDTexts(rows)
}

// Adjacent returns the previous/next sibling (by sequence index, within the
// same parent) and the parent of a node.
func (s *Store) Adjacent(ctx context.Context, nodeID int64) (Neighbors, error) {
	var neigh Neighbors

	var parentID sql.NullInt64
	var seq int
	row := s.db.QueryRowContext(ctx, `SELECT parent_id, sequence_index FROM summaries WHERE id = ?`, nodeID)
	if err := row.Scan(&parentID, &seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return neigh, ErrNotFound
		}
		return neigh, fmt.Errorf("adjacent %d: %w", nodeID, err)
	}

	if parentID.Valid {
		var pText string
		prow := s.db.QueryRowContext(ctx, `SELECT summary_text FROM summaries WHERE id = ?`, parentID.Int64)
		if err := prow.Scan(&pText); err == nil {
			neigh.Parent = &IDText{ID: parentID.Int64, Text: pText}
		}

		prev, err := s.siblingAt(ctx, parentID.Int64, seq, true)
		if err != nil {
			return neigh, err
		}
		neigh.Prev = prev

		next, err := s.siblingAt(ctx, parentID.Int64, seq, false)
		if err != nil {
			return neigh, err
		}
		neigh.Next = next
	}

	return neigh, nil
}

func (s *Store) siblingAt(ctx context.Context, parentID int64, seq int, before bool) (*IDText, error) {
	var query string
	if before {
		query = `SELECT id, summary_text FROM summaries WHERE parent_id = ? AND sequence_index < ? ORDER BY sequence_index DESC LIMIT 1`
	} else {
		query = `SELECT id, summary_text FROM summaries WHERE parent_id = ? AND sequence_index > ? ORDER BY sequence_index ASC LIMIT 1`
	}
	row := s.db.QueryRowContext(ctx, query, parentID, seq)
	var it IDText
	if err := row.Scan(&it.ID, &it.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sibling: %w", err)
	}
	return &it, nil
}

// NodeMetadata returns a node's level and text, or ErrNotFound.
func (s *Store) NodeMetadata(ctx context.Context, id int64) (NodeMetadata, error) {
	var md NodeMetadata
	row := s.db.QueryRowContext(ctx, `SELECT level, summary_text FROM summaries WHERE id = ?`, id)
	if err := row.Scan(&md.Level, &md.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return md, ErrNotFound
		}
		return md, fmt.Errorf("node metadata %d: %w", id, err)
	}
	return md, nil
}

// ChunkIDOf returns the chunk a node links to, or nil if it has none.
func (s *Store) ChunkIDOf(ctx context.Context, nodeID int64) (*int64, error) {
	var chunkID sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT chunk_id FROM summaries WHERE id = ?`, nodeID)
	if err := row.Scan(&chunkID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chunk id of %d: %w", nodeID, err)
	}
	if !chunkID.Valid {
		return nil, nil
	}
	v := chunkID.Int64
	return &v, nil
}

// ChunkText returns the text of one chunk, or nil if it doesn't exist.
func (s *Store) ChunkText(ctx context.Context, id int64) (*string, error) {
	var text string
	row := s.db.QueryRowContext(ctx, `SELECT text FROM chunks WHERE id = ?`, id)
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("chunk text %d: %w", id, err)
	}
	return &text, nil
}

// ChunkTexts batches ChunkText, preserving input order. Missing ids map to
// an empty string.
func (s *Store) ChunkTexts(ctx context.Context, ids []int64) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		t, err := s.ChunkText(ctx, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out[i] = *t
		}
	}
	return out, nil
}

// SummaryText returns one node's text, or nil if it doesn't exist.
func (s *Store) SummaryText(ctx context.Context, id int64) (*string, error) {
	var text string
	row := s.db.QueryRowContext(ctx, `SELECT summary_text FROM summaries WHERE id = ?`, id)
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("summary text %d: %w", id, err)
	}
	return &text, nil
}

// SummariesText batches SummaryText, preserving input order.
func (s *Store) SummariesText(ctx context.Context, ids []int64) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		t, err := s.SummaryText(ctx, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out[i] = *t
		}
	}
	return out, nil
}

// Search performs a case-sensitive substring match over summary texts,
// capped at limit rows.
func (s *Store) Search(ctx context.Context, substring string, limit int) ([]LeveledIDText, error) {
	if limit <= 0 {
		limit = 10
	}
	// LIKE is case-insensitive for ASCII in SQLite's default collation;
	// INSTR is byte-wise and case-sensitive, matching the spec's contract.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, level, summary_text FROM summaries WHERE instr(summary_text, ?) > 0 ORDER BY id ASC LIMIT ?`,
		substring, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []LeveledIDText
	for rows.Next() {
		var it LeveledIDText
		if err := rows.Scan(&it.ID, &it.Level, &it.Text); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MaxLevel returns the highest level among stored summary nodes, or nil if
// the store has none.
func (s *Store) MaxLevel(ctx context.Context) (*int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MAX(level) FROM summaries`)
	var level sql.NullInt64
	if err := row.Scan(&level); err != nil {
		return nil, fmt.Errorf("max level: %w", err)
	}
	if !level.Valid {
		return nil, nil
	}
	v := int(level.Int64)
	return &v, nil
}

// OrphanSummaries returns nodes at the current max level with a null
// parent, ordered for deterministic regrouping.
func (s *Store) OrphanSummaries(ctx context.Context) ([]int64, error) {
	maxLevel, err := s.MaxLevel(ctx)
	if err != nil {
		return nil, err
	}
	if maxLevel == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM summaries WHERE level = ? AND parent_id IS NULL ORDER BY sequence_index ASC, id ASC`,
		*maxLevel)
	if err != nil {
		return nil, fmt.Errorf("orphan summaries: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ChunksWithoutSummary returns chunks that no level-0 node references.
func (s *Store) ChunksWithoutSummary(ctx context.Context) ([]IDText, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.text FROM chunks c
		LEFT JOIN summaries s ON s.chunk_id = c.id AND s.level = 0
		WHERE s.id IS NULL
		ORDER BY c.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("chunks without summary: %w", err)
	}
	defer rows.Close()
	return scanIDTexts(rows)
}

// BrokenSummaries scans the full summary text for the three sentinel
// failure modes (spec.md §4.8).
func (s *Store) BrokenSummaries(ctx context.Context) (BrokenSummaries, error) {
	var out BrokenSummaries
	rows, err := s.db.QueryContext(ctx, `SELECT id, summary_text FROM summaries`)
	if err != nil {
		return out, fmt.Errorf("broken summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it IDText
		if err := rows.Scan(&it.ID, &it.Text); err != nil {
			return out, err
		}
		switch {
		case sentinel.HasProviderError(it.Text):
			out.ProviderError = append(out.ProviderError, it)
		case sentinel.HasControlTokens(it.Text):
			out.ControlTokens = append(out.ControlTokens, it)
		case sentinel.HasCodeFence(it.Text):
			out.CodeFence = append(out.CodeFence, it)
		}
	}
	return out, rows.Err()
}

// SummaryWithContext provides the inputs a summarizer needs to regenerate
// node id: its level, the linked chunk's text (level 0), or its children's
// texts (level > 0).
func (s *Store) SummaryWithContext(ctx context.Context, id int64) (SummaryContext, error) {
	var sc SummaryContext
	md, err := s.NodeMetadata(ctx, id)
	if err != nil {
		return sc, err
	}
	sc.Level = md.Level

	if md.Level == 0 {
		chunkID, err := s.ChunkIDOf(ctx, id)
		if err != nil {
			return sc, err
		}
		if chunkID != nil {
			text, err := s.ChunkText(ctx, *chunkID)
			if err != nil {
				return sc, err
			}
			sc.ChunkText = text
		}
		return sc, nil
	}

	children, err := s.Children(ctx, id)
	if err != nil {
		return sc, err
	}
	for _, c := range children {
		sc.ChildTexts = append(sc.ChildTexts, c.Text)
	}
	return sc, nil
}

func scanIDTexts(rows *sql.Rows) ([]IDText, error) {
	var out []IDText
	for rows.Next() {
		var it IDText
		if err := rows.Scan(&it.ID, &it.Text); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
