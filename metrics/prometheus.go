// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics.
type Metrics struct {
	// Counters
	RowsIngested *prometheus.CounterVec
	RowsAccepted *prometheus.CounterVec
	RowsRejected *prometheus.CounterVec
	RowsFiltered *prometheus.CounterVec
	KPIRows      *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec

	// Gauges
	ActiveWorkers prometheus.Gauge
	RunFailed     prometheus.Gauge

	// Histograms
	LayerDuration *prometheus.HistogramVec
	BatchDuration prometheus.Histogram

	// Internal
	registry *prometheus.Registry
	enabled  bool
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g., ":9090"
}

// ApplyDefaults sets default values for metrics config.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":9090"
	}
}

// New creates a new metrics instance.
func New(cfg Config) *Metrics {
	cfg.ApplyDefaults()

	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}

	if !cfg.Enabled {
		return m
	}

	m.RowsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sirene",
			Name:      "rows_ingested_total",
			Help:      "Total bronze rows read per dataset",
		},
		[]string{"dataset"},
	)

	m.RowsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sirene",
			Name:      "rows_accepted_total",
			Help:      "Total rows accepted into silver per dataset",
		},
		[]string{"dataset"},
	)

	m.RowsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sirene",
			Name:      "rows_rejected_total",
			Help:      "Total rows routed to the rejection report",
		},
		[]string{"dataset", "rule"},
	)

	m.RowsFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sirene",
			Name:      "rows_filtered_total",
			Help:      "Total rows excluded by the geographic scope filter",
		},
		[]string{"dataset"},
	)

	m.KPIRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sirene",
			Name:      "kpi_rows_total",
			Help:      "Gold rows materialized per KPI table",
		},
		[]string{"kpi"},
	)

	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sirene",
			Name:      "errors_total",
			Help:      "Total errors by type",
		},
		[]string{"type"}, // "ingestion", "validation", "aggregation", "storage"
	)

	m.ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sirene",
			Name:      "workers_active",
			Help:      "Number of active worker goroutines",
		},
	)

	m.RunFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sirene",
			Name:      "run_failed",
			Help:      "1 when the last run ended in FAILED",
		},
	)

	m.LayerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sirene",
			Name:      "layer_duration_seconds",
			Help:      "Time spent per pipeline layer",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
		[]string{"layer"},
	)

	m.BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sirene",
			Name:      "batch_duration_seconds",
			Help:      "Time to validate one chunk of rows",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	m.registry.MustRegister(
		m.RowsIngested,
		m.RowsAccepted,
		m.RowsRejected,
		m.RowsFiltered,
		m.KPIRows,
		m.ErrorsTotal,
		m.ActiveWorkers,
		m.RunFailed,
		m.LayerDuration,
		m.BatchDuration,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a metrics HTTP server.
func (m *Metrics) StartServer(addr string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return http.ListenAndServe(addr, mux)
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m.enabled
}

// Helper methods for common operations

// RecordRowsIngested adds to the ingested counter for a dataset.
func (m *Metrics) RecordRowsIngested(dataset string, count int) {
	if m.enabled && m.RowsIngested != nil {
		m.RowsIngested.WithLabelValues(dataset).Add(float64(count))
	}
}

// RecordRowsAccepted adds to the accepted counter for a dataset.
func (m *Metrics) RecordRowsAccepted(dataset string, count int) {
	if m.enabled && m.RowsAccepted != nil {
		m.RowsAccepted.WithLabelValues(dataset).Add(float64(count))
	}
}

// RecordRejection increments the rejection counter for a rule.
func (m *Metrics) RecordRejection(dataset, rule string) {
	if m.enabled && m.RowsRejected != nil {
		m.RowsRejected.WithLabelValues(dataset, rule).Inc()
	}
}

// RecordRowsFiltered adds to the geographic filter counter.
func (m *Metrics) RecordRowsFiltered(dataset string, count int) {
	if m.enabled && m.RowsFiltered != nil {
		m.RowsFiltered.WithLabelValues(dataset).Add(float64(count))
	}
}

// RecordKPIRows adds to the KPI row counter.
func (m *Metrics) RecordKPIRows(kpi string, count int64) {
	if m.enabled && m.KPIRows != nil {
		m.KPIRows.WithLabelValues(kpi).Add(float64(count))
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(errorType string) {
	if m.enabled && m.ErrorsTotal != nil {
		m.ErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// SetActiveWorkers sets the active worker gauge.
func (m *Metrics) SetActiveWorkers(count int) {
	if m.enabled && m.ActiveWorkers != nil {
		m.ActiveWorkers.Set(float64(count))
	}
}

// SetRunFailed records the terminal state of the last run.
func (m *Metrics) SetRunFailed(failed bool) {
	if m.enabled && m.RunFailed != nil {
		if failed {
			m.RunFailed.Set(1)
		} else {
			m.RunFailed.Set(0)
		}
	}
}

// RecordLayerDuration records time spent in a pipeline layer.
func (m *Metrics) RecordLayerDuration(layer string, duration time.Duration) {
	if m.enabled && m.LayerDuration != nil {
		m.LayerDuration.WithLabelValues(layer).Observe(duration.Seconds())
	}
}

// RecordBatchDuration records chunk validation duration.
func (m *Metrics) RecordBatchDuration(duration time.Duration) {
	if m.enabled && m.BatchDuration != nil {
		m.BatchDuration.Observe(duration.Seconds())
	}
}
