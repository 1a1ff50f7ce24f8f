// Package metrics exposes repository activity as Prometheus metrics written
// to a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "artifacts"

// Collector implements ports.Metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	installsTotal   *prometheus.CounterVec
	installDuration *prometheus.HistogramVec
	removalsTotal   *prometheus.CounterVec
	evictionsTotal  *prometheus.CounterVec
	usedBytes       prometheus.Gauge
	artifacts       prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		installsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installs_total",
				Help:      "Installation attempts by plugin and final state",
			},
			[]string{"plugin", "outcome"},
		),
		installDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Time spent running install scripts",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"plugin"},
		),
		removalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "removals_total",
				Help:      "Artifacts removed on request",
			},
			[]string{"plugin"},
		),
		evictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evictions_total",
				Help:      "Artifacts removed by pruning",
			},
			[]string{"plugin"},
		),
		usedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "used_bytes",
			Help:      "Sum of installed artifact sizes",
		}),
		artifacts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the metadata index",
		}),
	}
}

// InstallFinished records an installation attempt.
func (c *Collector) InstallFinished(pluginID, outcome string, d time.Duration) {
	c.installsTotal.WithLabelValues(pluginID, outcome).Inc()
	c.installDuration.WithLabelValues(pluginID).Observe(d.Seconds())
}

// Removed records an explicit removal.
func (c *Collector) Removed(pluginID string) {
	c.removalsTotal.WithLabelValues(pluginID).Inc()
}

// Evicted records a pruning eviction.
func (c *Collector) Evicted(pluginID string) {
	c.evictionsTotal.WithLabelValues(pluginID).Inc()
}

// SetUsage records the index totals.
func (c *Collector) SetUsage(usedBytes int64, artifacts int) {
	c.usedBytes.Set(float64(usedBytes))
	c.artifacts.Set(float64(artifacts))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes every metric in the text exposition format. The
// file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

var _ ports.Metrics = (*Collector)(nil)
