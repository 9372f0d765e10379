package store

import (
	"context"
	"testing"
)

func TestNewMySQLStore_InvalidDSN(t *testing.T) {
	if _, err := NewMySQLStore[string](context.Background(), "not a dsn"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}
