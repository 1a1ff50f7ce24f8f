// Package source fetches plugin install scripts from where a request says
// they live: the local filesystem or a web application host reached over
// SSH.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// Local copies scripts on the local filesystem.
type Local struct{}

// NewLocal creates a new Local fetcher.
func NewLocal() *Local {
	return &Local{}
}

// Fetch copies sourcePath to targetPath, replacing any existing file and
// keeping the source permissions.
func (l *Local) Fetch(ctx context.Context, sourcePath, targetPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("unable to open install script: %w", err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("unable to stat install script: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("install script %s is a directory", sourcePath)
	}

	return writeFile(targetPath, src, info.Mode().Perm())
}

// writeFile streams r into a temp file next to targetPath, then renames it
// into place.
func writeFile(targetPath string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := targetPath + ".tmp"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", targetPath, err)
	}
	return nil
}

var _ ports.ScriptFetcher = (*Local)(nil)
