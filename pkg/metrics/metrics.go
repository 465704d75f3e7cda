// Package metrics exposes engine counters for Prometheus scraping.
// Collectors live on a private registry so embedding the engine never
// pollutes the host process's default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	probesTotal      *prometheus.CounterVec
	verdictsTotal    *prometheus.CounterVec
	baselineCaptures prometheus.Counter
	probeDuration    prometheus.Histogram
}

// New creates the collector set on a fresh private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaults.ToolName,
			Name:      "probes_total",
			Help:      "Probe requests fired, by resulting error class.",
		}, []string{"error_class"}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaults.ToolName,
			Name:      "verdicts_total",
			Help:      "Scoring verdicts issued, by obstacle state.",
		}, []string{"state"}),
		baselineCaptures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: defaults.ToolName,
			Name:      "baseline_captures_total",
			Help:      "Baseline capture runs completed.",
		}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: defaults.ToolName,
			Name:      "probe_duration_seconds",
			Help:      "Wall time of individual probe requests.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	registry.MustRegister(
		m.probesTotal,
		m.verdictsTotal,
		m.baselineCaptures,
		m.probeDuration,
	)
	return m
}

// Registry returns the private registry, for mounting promhttp or
// gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveProbe records one fired probe.
func (m *Metrics) ObserveProbe(errorClass string, seconds float64) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(errorClass).Inc()
	m.probeDuration.Observe(seconds)
}

// ObserveVerdict records one scoring verdict.
func (m *Metrics) ObserveVerdict(state string) {
	if m == nil {
		return
	}
	m.verdictsTotal.WithLabelValues(state).Inc()
}

// ObserveBaselineCapture records one completed baseline run.
func (m *Metrics) ObserveBaselineCapture() {
	if m == nil {
		return
	}
	m.baselineCaptures.Inc()
}
