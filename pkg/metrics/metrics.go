package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// KV backbone metrics
	KVStoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warrendb_kv_store_bytes",
			Help: "Approximate on-disk size of the KV backbone in bytes",
		},
	)

	// Secondary index metrics
	IndexCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warrendb_index_count",
			Help: "Total number of registered secondary indexes",
		},
	)

	IndexRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrendb_index_rebuilds_total",
			Help: "Total number of index rebuild operations by collection",
		},
		[]string{"collection"},
	)

	IndexRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrendb_index_rebuild_duration_seconds",
			Help:    "Time taken to rebuild a collection's indexes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Vector index metrics
	VectorCollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warrendb_vector_collections_total",
			Help: "Total number of initialized vector collections",
		},
	)

	VectorSearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrendb_vector_search_duration_seconds",
			Help:    "Time taken to run a vector_search call in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Time-series metrics
	TimeseriesPointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrendb_timeseries_points_total",
			Help: "Total number of time-series points ingested via ts_put",
		},
	)

	TimeseriesRetentionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrendb_timeseries_retention_duration_seconds",
			Help:    "Time taken for a time-series retention sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CDC metrics
	CDCSequence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warrendb_cdc_sequence",
			Help: "Latest assigned CDC sequence number",
		},
	)

	CDCRetentionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrendb_cdc_retention_duration_seconds",
			Help:    "Time taken for a CDC retention sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query metrics
	QueryExecuteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warrendb_query_execute_duration_seconds",
			Help:    "Time taken to execute an AQL query in seconds, by plan mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	QueryExecuteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrendb_query_execute_total",
			Help: "Total number of executed AQL queries by outcome",
		},
		[]string{"outcome"},
	)

	QueryFullScanFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrendb_query_full_scan_fallback_total",
			Help: "Total number of queries that fell back to a full collection scan",
		},
	)

	// SAGA metrics
	SagaCompensationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrendb_saga_compensations_total",
			Help: "Total number of SAGA compensation runs (rolled-back mutations)",
		},
	)

	SagaCompensationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrendb_saga_compensation_failures_total",
			Help: "Total number of individual compensation steps that themselves failed",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrendb_reconciliation_duration_seconds",
			Help:    "Time taken for an index-consistency reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrendb_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)
)

func init() {
	prometheus.MustRegister(KVStoreBytes)
	prometheus.MustRegister(IndexCount)
	prometheus.MustRegister(IndexRebuildsTotal)
	prometheus.MustRegister(IndexRebuildDuration)
	prometheus.MustRegister(VectorCollectionsTotal)
	prometheus.MustRegister(VectorSearchDuration)
	prometheus.MustRegister(TimeseriesPointsTotal)
	prometheus.MustRegister(TimeseriesRetentionDuration)
	prometheus.MustRegister(CDCSequence)
	prometheus.MustRegister(CDCRetentionDuration)
	prometheus.MustRegister(QueryExecuteDuration)
	prometheus.MustRegister(QueryExecuteTotal)
	prometheus.MustRegister(QueryFullScanFallbackTotal)
	prometheus.MustRegister(SagaCompensationsTotal)
	prometheus.MustRegister(SagaCompensationFailuresTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
