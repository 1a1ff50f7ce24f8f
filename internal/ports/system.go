package ports

// DiskUsage describes the filesystem holding a path.
type DiskUsage struct {
	Total uint64
	Free  uint64
}

// FreePercent returns the free share of the filesystem, 0-100.
func (u DiskUsage) FreePercent() float64 {
	if u.Total == 0 {
		return 100
	}
	return float64(u.Free) * 100 / float64(u.Total)
}

// DiskProbe reports filesystem usage.
type DiskProbe interface {
	Usage(path string) (DiskUsage, error)
}

// HostInfo identifies the machine performing an installation.
type HostInfo struct {
	HostName       string
	OSName         string
	OSArchitecture string
	OSVersion      string
}

// HostProbe reports information about the current machine.
type HostProbe interface {
	Host() HostInfo
}
