// Package store is the persistent, single-file store of chunks and summary
// tree nodes. It owns both entities exclusively: every other component
// passes ids, never long-lived references.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed, crash-consistent store for one document's
// chunks and summary tree. All writes serialize under a single coarse write
// lock (spec.md §5); reads proceed directly against the database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the SQLite file at path, applies schema
// migrations, and returns a ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer file; avoid sqlite lock contention

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys on %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store %q: %w", path, err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ErrNotFound is returned by lookups that find nothing, for callers that
// need to distinguish "absent" from a real I/O error.
var ErrNotFound = errors.New("store: not found")
