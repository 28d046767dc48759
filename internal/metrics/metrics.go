// Package metrics provides Prometheus metrics for the preset service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics published by the service. A nil
// *Metrics is valid: every Record method is a no-op on it, so callers
// that run without metrics (one-shot CLI passes, tests) skip the wiring.
type Metrics struct {
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	ExportsTotal  prometheus.Counter

	SyncRunsTotal     *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	FilesSkippedTotal prometheus.Counter

	StoreFiles   prometheus.Gauge
	StoreRecords prometheus.Gauge
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dagaz_queries_total",
			Help: "Total number of record queries",
		},
		[]string{"status"},
	)

	m.QueryDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dagaz_query_duration_seconds",
			Help:    "Duration of record queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	m.ExportsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "dagaz_exports_total",
			Help: "Total number of CSV exports",
		},
	)

	m.SyncRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dagaz_sync_runs_total",
			Help: "Total number of sync passes",
		},
		[]string{"status"},
	)

	m.SyncDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dagaz_sync_duration_seconds",
			Help:    "Duration of sync passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.FilesSkippedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "dagaz_sync_files_skipped_total",
			Help: "Total number of preset files skipped after fetch or parse errors",
		},
	)

	m.StoreFiles = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "dagaz_store_files",
			Help: "Number of preset files currently in the store",
		},
	)

	m.StoreRecords = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "dagaz_store_records",
			Help: "Number of flattened records currently in the store",
		},
	)

	return m
}

// RecordQuery records one query with its outcome.
func (m *Metrics) RecordQuery(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryDuration.Observe(duration.Seconds())
}

// RecordExport records one CSV export.
func (m *Metrics) RecordExport() {
	if m == nil {
		return
	}
	m.ExportsTotal.Inc()
}

// RecordSyncRun records one completed sync pass.
func (m *Metrics) RecordSyncRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(status).Inc()
	m.SyncDuration.Observe(duration.Seconds())
}

// RecordFileSkipped records a preset file dropped from a sync pass.
func (m *Metrics) RecordFileSkipped() {
	if m == nil {
		return
	}
	m.FilesSkippedTotal.Inc()
}

// UpdateStoreStats updates the store size gauges.
func (m *Metrics) UpdateStoreStats(files, records int) {
	if m == nil {
		return
	}
	m.StoreFiles.Set(float64(files))
	m.StoreRecords.Set(float64(records))
}
