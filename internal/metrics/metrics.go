// Package metrics provides Prometheus metrics for contentvc
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Engine operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Version graph metrics
	VersionsCreatedTotal prometheus.Counter
	MergesTotal          *prometheus.CounterVec

	// Conflict metrics
	ConflictsOpenedTotal   prometheus.Counter
	ConflictsResolvedTotal prometheus.Counter

	// Side channels
	AuditFailuresTotal prometheus.Counter
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	gatherer  prometheus.Gatherer
	StartTime time.Time
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep registrations isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		gatherer:  reg,
		StartTime: time.Now(),
	}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentvc_operations_total",
			Help: "Total number of engine operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentvc_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	m.VersionsCreatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentvc_versions_created_total",
			Help: "Total number of versions written",
		},
	)

	m.MergesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentvc_merges_total",
			Help: "Total number of merge attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	m.ConflictsOpenedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentvc_conflicts_opened_total",
			Help: "Total number of conflicts recorded by merges",
		},
	)

	m.ConflictsResolvedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentvc_conflicts_resolved_total",
			Help: "Total number of conflicts resolved",
		},
	)

	m.AuditFailuresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentvc_audit_failures_total",
			Help: "Total number of audit events that could not be emitted",
		},
	)

	m.CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentvc_version_cache_hits_total",
			Help: "Total number of version cache hits",
		},
	)

	m.CacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentvc_version_cache_misses_total",
			Help: "Total number of version cache misses",
		},
	)

	return m
}

// RecordOperation records an engine operation with its outcome
func (m *Metrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVersion counts a written version
func (m *Metrics) RecordVersion() {
	if m == nil {
		return
	}
	m.VersionsCreatedTotal.Inc()
}

// RecordMerge counts a merge attempt outcome
func (m *Metrics) RecordMerge(strategy, outcome string) {
	if m == nil {
		return
	}
	m.MergesTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordConflicts counts newly recorded conflicts
func (m *Metrics) RecordConflicts(n int) {
	if m == nil {
		return
	}
	m.ConflictsOpenedTotal.Add(float64(n))
}

// RecordResolution counts one resolved conflict
func (m *Metrics) RecordResolution() {
	if m == nil {
		return
	}
	m.ConflictsResolvedTotal.Inc()
}

// RecordAuditFailure counts one dropped audit event
func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.Inc()
}

// CacheHit counts a version cache hit
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// CacheMiss counts a version cache miss
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
