// Package metrics provides Prometheus metrics for the indexing subsystem.
//
// All methods are safe on a nil *Metrics, so components can run unmetered.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cmsindex"

// Metrics holds all Prometheus metrics for the indexes.
type Metrics struct {
	// Writer metrics
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	BatchSize       *prometheus.HistogramVec
	OperationsTotal *prometheus.CounterVec

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Health metrics
	Documents *prometheus.GaugeVec
	Available *prometheus.GaugeVec
}

// New creates the metrics and registers them on reg.
// A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	m := &Metrics{}

	m.BatchesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of committed or failed index batches",
		},
		[]string{"index", "status"},
	)

	m.BatchDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of index batches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	m.BatchSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of ids touched per index batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"index"},
	)

	m.OperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Index mutations by outcome (upserted, deleted, skipped)",
		},
		[]string{"index", "outcome"},
	)

	m.QueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of search queries",
		},
		[]string{"index", "status"},
	)

	m.QueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of search queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	m.Documents = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents",
			Help:      "Documents per index at the last health check",
		},
		[]string{"index"},
	)

	m.Available = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_available",
			Help:      "1 when the index store is healthy, 0 otherwise",
		},
		[]string{"index"},
	)

	return m
}

// ObserveBatch records one batch.
func (m *Metrics) ObserveBatch(index string, ids int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(index, status(err)).Inc()
	m.BatchDuration.WithLabelValues(index).Observe(d.Seconds())
	m.BatchSize.WithLabelValues(index).Observe(float64(ids))
}

// AddOperations counts n mutations with the given outcome.
func (m *Metrics) AddOperations(index, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OperationsTotal.WithLabelValues(index, outcome).Add(float64(n))
}

// ObserveQuery records one search.
func (m *Metrics) ObserveQuery(index string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(index, status(err)).Inc()
	m.QueryDuration.WithLabelValues(index).Observe(d.Seconds())
}

// SetDocuments records the document count of index.
func (m *Metrics) SetDocuments(index string, n int) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(index).Set(float64(n))
}

// SetAvailable records whether index is healthy.
func (m *Metrics) SetAvailable(index string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.Available.WithLabelValues(index).Set(v)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
