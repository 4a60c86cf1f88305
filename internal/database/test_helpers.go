package database

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens a throwaway sqlite database in a per-test temp dir. The
// sqlite branch of NewDB creates the full schema, so tests exercise the same
// SQL the service runs.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(Config{Type: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return db, cleanup
}
