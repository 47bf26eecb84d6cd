package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics on a private Prometheus registry
type PrometheusMetrics struct {
	decisionsTotal atomic.Uint64

	decisions        *prometheus.CounterVec
	decisionErrors   *prometheus.CounterVec
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	activeRequests   prometheus.Gauge
	decisionDuration prometheus.Histogram

	reloads     *prometheus.CounterVec
	policyCount prometheus.Gauge

	obligations *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := &PrometheusMetrics{
		registry: registry,
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of decisions by evaluation value",
			},
			[]string{"value"},
		),
		decisionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of decision requests that failed by type",
			},
			[]string{"type"},
		),
		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of decision cache hits",
			},
		),
		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of decision cache misses",
			},
		),
		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of decisions currently being evaluated",
			},
		),
		// 1µs to 10ms; compiled trees evaluate well under a millisecond
		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_duration_microseconds",
				Help:      "Decision latency in microseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
			},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "reloads_total",
				Help:      "Total number of policy reloads by status",
			},
			[]string{"status"},
		),
		policyCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "documents",
				Help:      "Number of policy documents currently loaded",
			},
		),
		obligations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enforcement",
				Name:      "obligations_total",
				Help:      "Obligations handled by the enforcement registry",
			},
			[]string{"id", "status"},
		),
	}

	registry.MustRegister(
		p.decisions,
		p.decisionErrors,
		p.cacheHitsTotal,
		p.cacheMissesTotal,
		p.activeRequests,
		p.decisionDuration,
		p.reloads,
		p.policyCount,
		p.obligations,
	)

	return p
}

// RecordDecision records one decision and its latency
func (p *PrometheusMetrics) RecordDecision(value string, duration time.Duration) {
	p.decisionsTotal.Add(1)
	p.decisions.WithLabelValues(value).Inc()
	p.decisionDuration.Observe(float64(duration.Microseconds()))
}

// RecordDecisionError records a decision request that produced no result
func (p *PrometheusMetrics) RecordDecisionError(errorType string) {
	p.decisionErrors.WithLabelValues(errorType).Inc()
}

// RecordCacheHit records a cache hit
func (p *PrometheusMetrics) RecordCacheHit() {
	p.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func (p *PrometheusMetrics) RecordCacheMiss() {
	p.cacheMissesTotal.Inc()
}

// IncActiveRequests increments active requests
func (p *PrometheusMetrics) IncActiveRequests() {
	p.activeRequests.Inc()
}

// DecActiveRequests decrements active requests
func (p *PrometheusMetrics) DecActiveRequests() {
	p.activeRequests.Dec()
}

// RecordReload records a policy reload attempt
func (p *PrometheusMetrics) RecordReload(status string) {
	p.reloads.WithLabelValues(status).Inc()
}

// UpdatePolicyCount sets the number of loaded documents
func (p *PrometheusMetrics) UpdatePolicyCount(count int) {
	p.policyCount.Set(float64(count))
}

// RecordObligation records the outcome of one obligation
func (p *PrometheusMetrics) RecordObligation(id, status string) {
	p.obligations.WithLabelValues(id, status).Inc()
}

// DecisionsTotal returns the number of decisions recorded so far
func (p *PrometheusMetrics) DecisionsTotal() uint64 {
	return p.decisionsTotal.Load()
}

// Registry exposes the underlying registry for tests and embedding
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// HTTPHandler returns the Prometheus scrape handler
func (p *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
