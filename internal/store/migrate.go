package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is the current migration level this binary understands.
// golang-migrate's sqlite3 database driver requires the CGO-based
// mattn/go-sqlite3 driver, which conflicts with the pure-Go
// modernc.org/sqlite driver used here for a portable, CGO-free single
// binary; migrations are therefore applied by this small versioned runner
// instead, numbered the same way a golang-migrate source directory would be.
const schemaVersion = 2

// migrate brings a database up to schemaVersion, in order, inside
// transactions. Migration 1 creates the v1 schema (chunks, summaries, and a
// many-to-many summary_chunks join table). Migration 2 supersedes that join
// table by moving the linkage onto summaries.chunk_id directly (spec.md
// §6.2), copying existing level-0 links before dropping the old table.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL);
	`); err != nil {
		return err
	}

	current, err := s.currentVersion(ctx)
	if err != nil {
		return err
	}

	for v := current + 1; v <= schemaVersion; v++ {
		if err := s.applyMigration(ctx, v); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
	}
	return nil
}

func (s *Store) currentVersion(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	var v int
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *Store) applyMigration(ctx context.Context, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch version {
	case 1:
		if err := applyV1(ctx, tx); err != nil {
			return err
		}
	case 2:
		if err := applyV2(ctx, tx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown schema version %d", version)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}

func applyV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			start_index INTEGER NOT NULL,
			end_index INTEGER NOT NULL,
			file_source TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			summary_text TEXT NOT NULL,
			level INTEGER NOT NULL,
			parent_id INTEGER REFERENCES summaries(id),
			sequence_index INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS summary_chunks (
			summary_id INTEGER NOT NULL REFERENCES summaries(id),
			chunk_id INTEGER NOT NULL REFERENCES chunks(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_parent_seq ON summaries(parent_id, sequence_index);`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_level ON summaries(level);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func applyV2(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE summaries ADD COLUMN chunk_id INTEGER REFERENCES chunks(id);`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE summaries
		SET chunk_id = (
			SELECT sc.chunk_id FROM summary_chunks sc WHERE sc.summary_id = summaries.id LIMIT 1
		)
		WHERE level = 0;
	`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS summary_chunks;`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_summaries_chunk_id ON summaries(chunk_id);`); err != nil {
		return err
	}
	return nil
}
