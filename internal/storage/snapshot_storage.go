// Package storage archives raw frame snapshots on local disk, keyed by frame
// id, so clients can fetch the original image behind a search result.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type SnapshotStorage struct {
	basePath string
}

func NewSnapshotStorage(basePath string) (*SnapshotStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotStorage{basePath: basePath}, nil
}

func (s *SnapshotStorage) path(frameID string) (string, error) {
	clean := filepath.Clean(frameID)
	if clean == "." || strings.ContainsAny(clean, "/\\") || strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid frame id")
	}
	return filepath.Join(s.basePath, clean+".jpg"), nil
}

func (s *SnapshotStorage) SaveSnapshot(frameID string, image []byte) error {
	fullPath, err := s.path(frameID)
	if err != nil {
		return err
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, image, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// OpenSnapshot returns the archived image for a frame, or os.ErrNotExist if
// the frame was vectorized without snapshots enabled.
func (s *SnapshotStorage) OpenSnapshot(frameID string) (io.ReadSeekCloser, error) {
	fullPath, err := s.path(frameID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *SnapshotStorage) DeleteSnapshot(frameID string) error {
	fullPath, err := s.path(frameID)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
