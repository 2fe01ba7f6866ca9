package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// transition engine and changeset pipeline. It satisfies the observer
// interfaces consumed by the other services.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	transitionTotal   *prometheus.CounterVec
	lockWait          prometheus.Observer
	changesetApply    *prometheus.CounterVec
	changesetRollback *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
}

// NewMetricsService registers core Prometheus collectors.
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_transitions_total",
		Help: "State transitions by entity kind and outcome",
	}, []string{"kind", "outcome"})

	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "entity_lock_wait_seconds",
		Help:    "Time spent waiting for per-entity locks",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	changesetApply := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "changeset_apply_total",
		Help: "Changeset apply passes by final status",
	}, []string{"status"})

	changesetRollback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "changeset_rollback_total",
		Help: "Changeset rollback passes by final status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, lockWait, changesetApply, changesetRollback, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		transitionTotal:   transitionTotal,
		lockWait:          lockWait,
		changesetApply:    changesetApply,
		changesetRollback: changesetRollback,
	}
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
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveTransition records a transition attempt and its lock wait.
func (m *MetricsService) ObserveTransition(kind, outcome string, lockWait time.Duration) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(kind, outcome).Inc()
	m.lockWait.Observe(lockWait.Seconds())
	atomic.AddUint64(&m.transitionCount, 1)
}

// ObserveChangesetApply records one apply pass.
func (m *MetricsService) ObserveChangesetApply(outcome string, records int) {
	if m == nil {
		return
	}
	m.changesetApply.WithLabelValues(outcome).Add(1)
}

// ObserveChangesetRollback records one rollback pass.
func (m *MetricsService) ObserveChangesetRollback(outcome string, records int) {
	if m == nil {
		return
	}
	m.changesetRollback.WithLabelValues(outcome).Add(1)
}

// MetricsSnapshot aggregates counters for health endpoints.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// Snapshot returns aggregated metrics for API consumption.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		TransitionsTotal:         atomic.LoadUint64(&m.transitionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
