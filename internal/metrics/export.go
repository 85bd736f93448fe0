// Package metrics holds the Prometheus counters of an export run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "es2csv"

// Export groups the metrics of a single export run.
type Export struct {
	registry *prometheus.Registry

	DocumentsFetched prometheus.Counter
	PagesFetched     prometheus.Counter
	RowsSpilled      prometheus.Counter
	RowsWritten      prometheus.Counter
	Retries          *prometheus.CounterVec
	ReportedTotal    prometheus.Gauge
	Columns          prometheus.Gauge
	DurationSeconds  prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New creates the export metrics on a private registry.
func New() *Export {
	m := &Export{
		registry: prometheus.NewRegistry(),

		DocumentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_fetched_total",
			Help:      "Documents received from the search cluster",
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Search and scroll pages received",
		}),
		RowsSpilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_spilled_total",
			Help:      "Flattened rows written to the spill store",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "CSV data rows written to the output file",
		}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried network operations",
		}, []string{"op"}),
		ReportedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reported_total",
			Help:      "Matching document count reported by the first search page",
		}),
		Columns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "columns",
			Help:      "Columns in the final CSV header",
		}),
		DurationSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall time of the export run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful export",
		}),
	}

	m.registry.MustRegister(
		m.DocumentsFetched, m.PagesFetched,
		m.RowsSpilled, m.RowsWritten,
		m.Retries, m.ReportedTotal, m.Columns,
		m.DurationSeconds, m.LastSuccess,
	)

	return m
}

// Gatherer exposes the private registry.
func (m *Export) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteFile writes the metrics in text exposition format, for the node
// exporter textfile collector. The file is replaced atomically.
func (m *Export) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
