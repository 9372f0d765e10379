package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := NewSQLiteStore[map[string]int](path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q", s.Path())
	}
	if err := s.SaveStep(ctx, "r1", 1, "llm", map[string]int{"tokens": 12}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore[map[string]int](path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()
	snap, seq, err := reopened.LoadLatest(ctx, "r1")
	if err != nil || seq != 1 || snap["tokens"] != 12 {
		t.Errorf("LoadLatest() after reopen = (%v, %d, %v)", snap, seq, err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore[string](":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	_ = s.SaveCheckpoint(ctx, "final", "done", 3)
	if v, _, err := s.LoadCheckpoint(ctx, "final"); err != nil || v != "done" {
		t.Errorf("LoadCheckpoint() = (%q, %v)", v, err)
	}
}
