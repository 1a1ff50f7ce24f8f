// Package hostinfo describes the machine performing installations.
package hostinfo

import (
	"os"
	"runtime"
	"sync"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/shirou/gopsutil/v3/host"
)

// Probe implements ports.HostProbe. The host is read once and cached.
type Probe struct {
	once sync.Once
	info ports.HostInfo
	read func() (*host.InfoStat, error)
}

// NewProbe creates a new Probe.
func NewProbe() *Probe {
	return &Probe{read: host.Info}
}

// Host returns hostname, OS, architecture and kernel version. Fields gopsutil
// cannot provide fall back to the Go runtime.
func (p *Probe) Host() ports.HostInfo {
	p.once.Do(func() {
		p.info = p.load()
	})
	return p.info
}

func (p *Probe) load() ports.HostInfo {
	info := ports.HostInfo{
		OSName:         runtime.GOOS,
		OSArchitecture: runtime.GOARCH,
	}
	if name, err := os.Hostname(); err == nil {
		info.HostName = name
	}

	stat, err := p.read()
	if err != nil || stat == nil {
		return info
	}
	if stat.Hostname != "" {
		info.HostName = stat.Hostname
	}
	if stat.OS != "" {
		info.OSName = stat.OS
	}
	if stat.KernelArch != "" {
		info.OSArchitecture = stat.KernelArch
	}
	info.OSVersion = stat.KernelVersion
	return info
}

var _ ports.HostProbe = (*Probe)(nil)
