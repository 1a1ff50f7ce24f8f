package mocks

import (
	"sync"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// DiskProbe is a test double for ports.DiskProbe.
type DiskProbe struct {
	mu    sync.Mutex
	usage ports.DiskUsage
	err   error
	calls int
}

// NewDiskProbe creates a probe reporting total bytes of which free are
// available.
func NewDiskProbe(total, free uint64) *DiskProbe {
	return &DiskProbe{usage: ports.DiskUsage{Total: total, Free: free}}
}

// SetUsage changes the reported usage.
func (p *DiskProbe) SetUsage(total, free uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage = ports.DiskUsage{Total: total, Free: free}
}

// SetError makes Usage fail.
func (p *DiskProbe) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Usage returns the configured usage.
func (p *DiskProbe) Usage(string) (ports.DiskUsage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.usage, p.err
}

// Calls returns how many times Usage was called.
func (p *DiskProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// HostProbe is a test double for ports.HostProbe.
type HostProbe struct {
	Info ports.HostInfo
}

// Host returns Info.
func (p HostProbe) Host() ports.HostInfo {
	return p.Info
}

var (
	_ ports.DiskProbe = (*DiskProbe)(nil)
	_ ports.HostProbe = HostProbe{}
)
