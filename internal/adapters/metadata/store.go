// Package metadata provides file-backed persistence for the artifact index
// and for installation request sets.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
)

// FileStore persists the artifact index as a single length-delimited
// protobuf message.
type FileStore struct{}

// NewFileStore creates a new FileStore.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Load reads the index from path. A missing or empty file is an empty index.
func (s *FileStore) Load(_ context.Context, path string) ([]*artifact.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	records, err := decodeRepository(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", artifact.ErrStoreCorrupt, path, err)
	}
	return records, nil
}

// Save writes the index to path, replacing any previous content.
func (s *FileStore) Save(_ context.Context, path string, records []*artifact.Artifact) error {
	return writeAtomic(path, encodeRepository(records))
}

// writeAtomic writes data to a temp file next to path, then renames it over
// path so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
