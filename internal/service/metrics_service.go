package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the domain counters.
const (
	OutcomeAccepted = "accepted"
	OutcomeFull     = "full"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MetricsService encapsulates Prometheus instrumentation. A nil *MetricsService records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	enrollments       *prometheus.CounterVec
	displacements     *prometheus.CounterVec
	creditAdjustments *prometheus.CounterVec
	projectionRepairs prometheus.Counter
}

// NewMetricsService registers core and domain Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_requests_total",
		Help: "Enrollment requests by outcome",
	}, []string{"outcome"})

	displacements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "displacements_total",
		Help: "Displacement attempts by outcome",
	}, []string{"outcome"})

	creditAdjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_adjustments_total",
		Help: "Reposition credit ledger writes by kind and outcome",
	}, []string{"kind", "outcome"})

	projectionRepairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_projection_repairs_total",
		Help: "Cached student balances corrected from the ledger",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses, dbQueryDuration,
		enrollments, displacements, creditAdjustments, projectionRepairs, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		dbQueryDuration:   dbQueryDuration,
		enrollments:       enrollments,
		displacements:     displacements,
		creditAdjustments: creditAdjustments,
		projectionRepairs: projectionRepairs,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing. It satisfies repository.QueryObserver.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordEnrollment counts one enrollment request.
func (m *MetricsService) RecordEnrollment(outcome string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(outcome).Inc()
}

// RecordDisplacement counts one displacement attempt.
func (m *MetricsService) RecordDisplacement(outcome string) {
	if m == nil {
		return
	}
	m.displacements.WithLabelValues(outcome).Inc()
}

// RecordCreditAdjustment counts one ledger write attempt.
func (m *MetricsService) RecordCreditAdjustment(kind, outcome string) {
	if m == nil {
		return
	}
	m.creditAdjustments.WithLabelValues(kind, outcome).Inc()
}

// RecordProjectionRepair counts a corrected student balance.
func (m *MetricsService) RecordProjectionRepair() {
	if m == nil {
		return
	}
	m.projectionRepairs.Inc()
}
