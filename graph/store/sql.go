package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	schema           []string
	upsertStep       string
	upsertCheckpoint string
}

// sqlStore implements Store over database/sql. Snapshots are stored as JSON
// and timestamps as Unix nanoseconds so both backends scan them the same way.
type sqlStore[S any] struct {
	db     *sql.DB
	d      dialect
	mu     sync.RWMutex
	closed bool
}

func newSQLStore[S any](ctx context.Context, db *sql.DB, d dialect) (*sqlStore[S], error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &sqlStore[S]{db: db, d: d}, nil
}

func (s *sqlStore[S]) open() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, seq int, nodeID string, snap S) error {
	if err := s.open(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.d.upsertStep, runID, seq, nodeID, string(data), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := s.open(); err != nil {
		return zero, 0, err
	}
	var (
		seq  int
		data string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, snapshot FROM agent_steps WHERE run_id = ? ORDER BY seq DESC LIMIT 1`, runID,
	).Scan(&seq, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	snap, err := decode[S](data)
	if err != nil {
		return zero, 0, err
	}
	return snap, seq, nil
}

func (s *sqlStore[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, node_id, snapshot, created_at FROM agent_steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []StepRecord[S]{}
	for rows.Next() {
		var (
			rec     StepRecord[S]
			data    string
			created int64
		)
		if err := rows.Scan(&rec.Seq, &rec.NodeID, &data, &created); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if rec.Snapshot, err = decode[S](data); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(0, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore[S]) SaveCheckpoint(ctx context.Context, cpID string, snap S, seq int) error {
	if err := s.open(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.d.upsertCheckpoint, cpID, seq, string(data), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *sqlStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (S, int, error) {
	var zero S
	if err := s.open(); err != nil {
		return zero, 0, err
	}
	var (
		seq  int
		data string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, snapshot FROM agent_checkpoints WHERE checkpoint_id = ?`, cpID,
	).Scan(&seq, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	snap, err := decode[S](data)
	if err != nil {
		return zero, 0, err
	}
	return snap, seq, nil
}

func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func decode[S any](data string) (S, error) {
	var snap S
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}
