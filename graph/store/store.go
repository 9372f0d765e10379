// Package store persists per-node snapshots of agent runs.
//
// The persistence feature writes one step record after every node a run
// executes and a checkpoint when the strategy finishes. Snapshots are
// generic; the SQL backends encode them as JSON.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run or checkpoint has no stored data.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists snapshots of type S.
//
// Steps are keyed by (runID, seq); saving the same key twice overwrites.
// Implementations must be safe for concurrent use.
type Store[S any] interface {
	// SaveStep records the snapshot taken after a node finished.
	SaveStep(ctx context.Context, runID string, seq int, nodeID string, snap S) error

	// LoadLatest returns the step with the highest seq for runID.
	LoadLatest(ctx context.Context, runID string) (snap S, seq int, err error)

	// ListSteps returns every step of runID ordered by seq.
	ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error)

	// SaveCheckpoint stores a named snapshot, replacing any previous one.
	SaveCheckpoint(ctx context.Context, cpID string, snap S, seq int) error

	// LoadCheckpoint returns a snapshot saved with SaveCheckpoint.
	LoadCheckpoint(ctx context.Context, cpID string) (snap S, seq int, err error)

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// StepRecord is one stored step.
type StepRecord[S any] struct {
	Seq       int
	NodeID    string
	Snapshot  S
	CreatedAt time.Time
}
