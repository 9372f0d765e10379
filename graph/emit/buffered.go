package emit

import (
	"sort"
	"sync"
)

// BufferedEmitter keeps every event in memory, grouped by run.
//
// It is meant for tests and for inspecting a run after the fact; nothing is
// ever evicted, so call Clear for long-lived processes.
//
//	buf := emit.NewBufferedEmitter()
//	tracing.New(buf) // install on the agent's pipeline
//	...
//	failures := buf.Filter(runID, emit.HistoryFilter{Kind: emit.KindToolCallFailure})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects events. Zero fields match everything; set fields
// are combined with AND.
type HistoryFilter struct {
	NodeID       string
	Kind         string
	MinIteration *int
	MaxIteration *int
	ErrorsOnly   bool
}

func (f HistoryFilter) match(e Event) bool {
	if f.NodeID != "" && e.NodeID != f.NodeID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.MinIteration != nil && e.Iteration < *f.MinIteration {
		return false
	}
	if f.MaxIteration != nil && e.Iteration > *f.MaxIteration {
		return false
	}
	if f.ErrorsOnly && e.Err() == "" {
		return false
	}
	return true
}

// NewBufferedEmitter returns an empty buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores event under its run, stamping Time if unset.
func (b *BufferedEmitter) Emit(event Event) {
	event = event.stamped()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns a copy of the run's events in emission order. The result
// is never nil.
func (b *BufferedEmitter) History(runID string) []Event {
	return b.Filter(runID, HistoryFilter{})
}

// Filter returns the run's events matching f, in emission order.
func (b *BufferedEmitter) Filter(runID string, f HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []Event{}
	for _, e := range b.events[runID] {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Runs returns the IDs of every run with stored events, sorted.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.events))
	for id := range b.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear drops the events of runID, or of every run when runID is "".
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
