package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBuild registers a build with a fixed creation time.
func createTestBuild(t *testing.T, s *Store, id string) Build {
	t.Helper()
	b := Build{
		ID:        id,
		Backend:   "default",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.CreateBuild(context.Background(), b); err != nil {
		t.Fatalf("CreateBuild() failed: %v", err)
	}
	return b
}
