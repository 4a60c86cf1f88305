package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewSnapshotStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	t.Run("SaveSnapshot", func(t *testing.T) {
		content := []byte("jpeg bytes")
		if err := storage.SaveSnapshot("frame-1", content); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		savedPath := filepath.Join(tmpDir, "frame-1.jpg")
		if _, err := os.Stat(savedPath); os.IsNotExist(err) {
			t.Errorf("Snapshot was not saved to expected location: %s", savedPath)
		}
	})

	t.Run("OpenSnapshot", func(t *testing.T) {
		content := []byte("jpeg bytes")
		if err := storage.SaveSnapshot("frame-2", content); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		file, err := storage.OpenSnapshot("frame-2")
		if err != nil {
			t.Fatalf("Failed to open snapshot: %v", err)
		}
		defer file.Close()

		got, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("Failed to read snapshot: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("Snapshot content mismatch")
		}
	})

	t.Run("OverwriteSnapshot", func(t *testing.T) {
		if err := storage.SaveSnapshot("frame-3", []byte("first")); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		if err := storage.SaveSnapshot("frame-3", []byte("second")); err != nil {
			t.Fatalf("Failed to overwrite snapshot: %v", err)
		}

		file, err := storage.OpenSnapshot("frame-3")
		if err != nil {
			t.Fatalf("Failed to open snapshot: %v", err)
		}
		defer file.Close()

		got, _ := io.ReadAll(file)
		if string(got) != "second" {
			t.Errorf("Expected overwritten content, got %q", got)
		}
	})

	t.Run("MissingSnapshot", func(t *testing.T) {
		_, err := storage.OpenSnapshot("frame-missing")
		if !os.IsNotExist(err) {
			t.Errorf("Expected a not-exist error, got %v", err)
		}
	})

	t.Run("DeleteSnapshot", func(t *testing.T) {
		if err := storage.SaveSnapshot("frame-4", []byte("bytes")); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		if err := storage.DeleteSnapshot("frame-4"); err != nil {
			t.Fatalf("Failed to delete snapshot: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tmpDir, "frame-4.jpg")); !os.IsNotExist(err) {
			t.Errorf("Snapshot was not deleted")
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		if err := storage.SaveSnapshot("../escape", []byte("x")); err == nil {
			t.Errorf("Path traversal was not prevented in save")
		}
		if _, err := storage.OpenSnapshot("../../etc/passwd"); err == nil {
			t.Errorf("Path traversal was not prevented in open")
		}
		if err := storage.DeleteSnapshot("a/b"); err == nil {
			t.Errorf("Separator in frame id was not rejected")
		}
	})
}
