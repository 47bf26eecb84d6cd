// Package metrics provides observability for the decision engine
package metrics

import (
	"net/http"
	"time"
)

// Metrics provides observability for the decision engine
type Metrics interface {
	// Decision metrics
	RecordDecision(value string, duration time.Duration)
	RecordDecisionError(errorType string)
	RecordCacheHit()
	RecordCacheMiss()
	IncActiveRequests()
	DecActiveRequests()

	// Policy lifecycle
	RecordReload(status string)
	UpdatePolicyCount(count int)

	// Enforcement: status is one of discharged, failed, missing
	RecordObligation(id, status string)

	// HTTP handler for Prometheus scraping
	HTTPHandler() http.Handler
}

// NoOpMetrics provides a no-op implementation for testing/disabled monitoring
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics instance
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordDecision(value string, duration time.Duration) {}
func (n *NoOpMetrics) RecordDecisionError(errorType string)                {}
func (n *NoOpMetrics) RecordCacheHit()                                     {}
func (n *NoOpMetrics) RecordCacheMiss()                                    {}
func (n *NoOpMetrics) IncActiveRequests()                                  {}
func (n *NoOpMetrics) DecActiveRequests()                                  {}
func (n *NoOpMetrics) RecordReload(status string)                          {}
func (n *NoOpMetrics) UpdatePolicyCount(count int)                         {}
func (n *NoOpMetrics) RecordObligation(id, status string)                  {}

// HTTPHandler returns a no-op handler
func (n *NoOpMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# NoOp metrics - monitoring disabled\n"))
	})
}
