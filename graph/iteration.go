package graph

import (
	"sync"
	"sync/atomic"
)

// IterationState is an immutable snapshot of a run's iteration counter.
//
// Each mutation through IterationStateManager.WithLock replaces the stored
// snapshot and invalidates the previous one, so a reference captured inside
// one WithLock call fails with ErrNotActive when used after it.
type IterationState struct {
	count int
	valid atomic.Bool
}

func newIterationState(count int) *IterationState {
	s := &IterationState{count: count}
	s.valid.Store(true)
	return s
}

// Count returns the number of node executions recorded in this snapshot.
func (s *IterationState) Count() (int, error) {
	if !s.valid.Load() {
		return 0, ErrNotActive
	}
	return s.count, nil
}

// IterationStateManager serializes updates to a run's iteration counter.
//
// One manager is shared by a run and every child context derived from it,
// so nested subgraphs count against the same ceiling.
type IterationStateManager struct {
	mu    sync.Mutex
	state *IterationState
}

// NewIterationStateManager returns a manager whose counter starts at zero.
func NewIterationStateManager() *IterationStateManager {
	return &IterationStateManager{state: newIterationState(0)}
}

// WithLock runs fn with exclusive access to the current snapshot.
//
// When fn succeeds, the stored snapshot is replaced by a fresh one holding
// the returned count and the snapshot fn received is invalidated. When fn
// returns an error the stored snapshot is left as is and the error is returned.
//
// Example:
//
//	err := m.WithLock(func(s *IterationState) (int, error) {
//	    n, err := s.Count()
//	    if err != nil {
//	        return 0, err
//	    }
//	    return n + 1, nil
//	})
func (m *IterationStateManager) WithLock(fn func(*IterationState) (int, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state
	next, err := fn(cur)
	if err != nil {
		return err
	}
	cur.valid.Store(false)
	m.state = newIterationState(next)
	return nil
}

// Current returns the latest count.
func (m *IterationStateManager) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.count
}
