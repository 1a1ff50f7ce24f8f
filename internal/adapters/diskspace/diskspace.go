// Package diskspace reports filesystem usage with gopsutil.
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/shirou/gopsutil/v3/disk"
)

// Probe implements ports.DiskProbe.
type Probe struct{}

// NewProbe creates a new Probe.
func NewProbe() *Probe {
	return &Probe{}
}

// Usage returns usage of the filesystem holding path. When path does not
// exist yet, its nearest existing ancestor is used.
func (p *Probe) Usage(path string) (ports.DiskUsage, error) {
	existing, err := nearestExisting(path)
	if err != nil {
		return ports.DiskUsage{}, err
	}
	stat, err := disk.Usage(existing)
	if err != nil {
		return ports.DiskUsage{}, fmt.Errorf("failed to read disk usage of %s: %w", existing, err)
	}
	return ports.DiskUsage{Total: stat.Total, Free: stat.Free}, nil
}

func nearestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		abs = parent
	}
}

var _ ports.DiskProbe = (*Probe)(nil)
