package graph

import (
	"fmt"
	"sort"
	"sync"
)

// StorageKey names a typed slot in a run's Storage.
//
// Keys are compared by name. Using one name with two different value types
// is a programming error and panics on Get.
//
// Example:
//
//	var planKey = graph.NewStorageKey[[]string]("plan")
//
//	_ = graph.Put(ac.Storage(), planKey, []string{"read", "write"})
//	plan, ok, err := graph.Get(ac.Storage(), planKey)
type StorageKey[T any] struct {
	name string
}

// NewStorageKey creates a key.
func NewStorageKey[T any](name string) StorageKey[T] {
	return StorageKey[T]{name: name}
}

// Name returns the key's name.
func (k StorageKey[T]) Name() string { return k.name }

// Storage is a run-scoped key/value store shared by all nodes of a run,
// including nodes of nested subgraphs. Concurrent writes to the same key are
// last-write-wins.
type Storage struct {
	mu     sync.RWMutex
	values map[string]any
	closed bool
}

func newStorage() *Storage {
	return &Storage{values: make(map[string]any)}
}

// Put stores v under k.
func Put[T any](s *Storage, k StorageKey[T], v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotActive
	}
	s.values[k.name] = v
	return nil
}

// Get loads the value stored under k.
func Get[T any](s *Storage, k StorageKey[T]) (T, bool, error) {
	var zero T
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return zero, false, ErrNotActive
	}
	raw, ok := s.values[k.name]
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(T)
	if !ok {
		panic(fmt.Sprintf("graph: storage key %q holds %T, not %T", k.name, raw, zero))
	}
	return v, true, nil
}

// Delete removes a key.
func (s *Storage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotActive
	}
	delete(s.values, name)
	return nil
}

// Snapshot returns a shallow copy of all values, for persistence and tests.
func (s *Storage) Snapshot() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrNotActive
	}
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// Keys returns stored key names in sorted order.
func (s *Storage) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrNotActive
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.values = nil
}
