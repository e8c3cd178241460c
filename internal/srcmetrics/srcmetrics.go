// Public domain.

// Package srcmetrics counts what a run did and exports the counts in
// the Prometheus text format.
package srcmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of one run, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	ClassesTotal        *prometheus.CounterVec
	CounterpartsTotal   *prometheus.CounterVec
	EngineDuration      prometheus.Histogram
	ConsolidatedWidth   prometheus.Gauge
	ConsolidatedSources prometheus.Gauge
}

// New returns registered run metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ClassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srcid_classes_total",
				Help: "Source classes processed, by outcome",
			},
			[]string{"status"},
		),
		CounterpartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srcid_counterparts_attached_total",
				Help: "Counterparts attached to the source catalogue, by class",
			},
			[]string{"class"},
		),
		EngineDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "srcid_engine_duration_seconds",
				Help:    "Association engine run time per class",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 900},
			},
		),
		ConsolidatedWidth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "srcid_consolidated_width",
				Help: "Largest number of counterparts of any source",
			},
		),
		ConsolidatedSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "srcid_sources_with_counterparts",
				Help: "Sources with at least one counterpart",
			},
		),
	}
	m.Registry.MustRegister(m.ClassesTotal, m.CounterpartsTotal,
		m.EngineDuration, m.ConsolidatedWidth, m.ConsolidatedSources)
	return m
}

// Class counts one class outcome.
func (m *Metrics) Class(status string) {
	m.ClassesTotal.WithLabelValues(status).Inc()
}

// Attached counts counterparts attached for a class.
func (m *Metrics) Attached(class string, n int) {
	m.CounterpartsTotal.WithLabelValues(class).Add(float64(n))
}

// Engine observes one engine run.
func (m *Metrics) Engine(d time.Duration) {
	m.EngineDuration.Observe(d.Seconds())
}

// Consolidated records the consolidation shape.
func (m *Metrics) Consolidated(width, sources int) {
	m.ConsolidatedWidth.Set(float64(width))
	m.ConsolidatedSources.Set(float64(sources))
}

// WriteFile writes the metrics to path in the text exposition format,
// for collection by a node exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
