package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps everything in process memory. It is the default backend
// for tests and for the CLI when no database is configured.
type MemStore[S any] struct {
	mu          sync.RWMutex
	closed      bool
	steps       map[string]map[int]StepRecord[S]
	checkpoints map[string]memCheckpoint[S]
}

type memCheckpoint[S any] struct {
	snap S
	seq  int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string]map[int]StepRecord[S]),
		checkpoints: make(map[string]memCheckpoint[S]),
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, seq int, nodeID string, snap S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	run := m.steps[runID]
	if run == nil {
		run = make(map[int]StepRecord[S])
		m.steps[runID] = run
	}
	run[seq] = StepRecord[S]{Seq: seq, NodeID: nodeID, Snapshot: snap, CreatedAt: time.Now()}
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero S
	if m.closed {
		return zero, 0, ErrClosed
	}
	run := m.steps[runID]
	if len(run) == 0 {
		return zero, 0, ErrNotFound
	}
	best := -1
	for seq := range run {
		if seq > best {
			best = seq
		}
	}
	return run[best].Snapshot, best, nil
}

// ListSteps implements Store.
func (m *MemStore[S]) ListSteps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]StepRecord[S], 0, len(m.steps[runID]))
	for _, rec := range m.steps[runID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// SaveCheckpoint implements Store.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cpID string, snap S, seq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.checkpoints[cpID] = memCheckpoint[S]{snap: snap, seq: seq}
	return nil
}

// LoadCheckpoint implements Store.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, cpID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero S
	if m.closed {
		return zero, 0, ErrClosed
	}
	cp, ok := m.checkpoints[cpID]
	if !ok {
		return zero, 0, ErrNotFound
	}
	return cp.snap, cp.seq, nil
}

// Close implements Store.
func (m *MemStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
