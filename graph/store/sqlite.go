package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single SQLite file using the pure-Go
// modernc.org/sqlite driver. Use ":memory:" for a throwaway database.
type SQLiteStore[S any] struct {
	*sqlStore[S]
	path string
}

var sqliteDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS agent_steps (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_checkpoints (
			checkpoint_id TEXT NOT NULL PRIMARY KEY,
			seq INTEGER NOT NULL,
			snapshot TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	},
	upsertStep: `INSERT INTO agent_steps (run_id, seq, node_id, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			node_id = excluded.node_id,
			snapshot = excluded.snapshot,
			created_at = excluded.created_at`,
	upsertCheckpoint: `INSERT INTO agent_checkpoints (checkpoint_id, seq, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			seq = excluded.seq,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive for the store's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	core, err := newSQLStore[S](ctx, db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore[S]{sqlStore: core, path: path}, nil
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore[S]) Path() string { return s.path }
