package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// dataset build pipeline.
type Metrics struct {
	BuildsTotal        *prometheus.CounterVec // labels: outcome={success,error}
	BuildDuration      prometheus.Histogram
	LastBuildTimestamp prometheus.Gauge
	PipelineRunning    prometheus.Gauge

	// Per-dataset stage metrics. Dataset label: cases, deaths,
	// vaccinations, usa.
	RowsNormalized     *prometheus.CounterVec
	RowsDerived        *prometheus.CounterVec
	UnresolvedEntities *prometheus.CounterVec

	// Sink export metrics.
	RecordsExported prometheus.Counter
	ExportErrors    prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.BuildsTotal,
		m.BuildDuration,
		m.LastBuildTimestamp,
		m.PipelineRunning,
		m.RowsNormalized,
		m.RowsDerived,
		m.UnresolvedEntities,
		m.RecordsExported,
		m.ExportErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "builds_total",
			Help:      "Dataset builds by outcome.",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "covidboard",
			Name:      "build_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-derive build.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastBuildTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covidboard",
			Name:      "last_build_timestamp_seconds",
			Help:      "Unix time of the most recent successful build.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covidboard",
			Name:      "pipeline_running",
			Help:      "1 when the build loop is active, 0 when shut down.",
		}),
		RowsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "rows_normalized_total",
			Help:      "Long-form observations produced by normalization, per dataset.",
		}, []string{"dataset"}),
		RowsDerived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "rows_derived_total",
			Help:      "Derived rows surviving the cleaning pass, per dataset.",
		}, []string{"dataset"}),
		UnresolvedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "unresolved_entities_total",
			Help:      "Entity names with no reference-metadata match, per dataset.",
		}, []string{"dataset"}),
		RecordsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "records_exported_total",
			Help:      "Derived records published to the sink topic.",
		}),
		ExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "export_errors_total",
			Help:      "Failed dataset exports.",
		}),
	}
}
