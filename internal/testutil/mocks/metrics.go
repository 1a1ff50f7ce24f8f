package mocks

import (
	"sync"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// Metrics records calls to ports.Metrics.
type Metrics struct {
	mu        sync.Mutex
	Installs  map[string]int
	Removals  []string
	Evictions []string
	UsedBytes int64
	Records   int
}

// NewMetrics creates a new Metrics recorder.
func NewMetrics() *Metrics {
	return &Metrics{Installs: make(map[string]int)}
}

// InstallFinished counts installs per outcome.
func (m *Metrics) InstallFinished(_ string, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Installs[outcome]++
}

// Removed records an explicit removal.
func (m *Metrics) Removed(pluginID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removals = append(m.Removals, pluginID)
}

// Evicted records an eviction.
func (m *Metrics) Evicted(pluginID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Evictions = append(m.Evictions, pluginID)
}

// SetUsage records the last reported usage.
func (m *Metrics) SetUsage(usedBytes int64, artifacts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UsedBytes = usedBytes
	m.Records = artifacts
}

var _ ports.Metrics = (*Metrics)(nil)
