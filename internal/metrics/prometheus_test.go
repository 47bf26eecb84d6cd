package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Metrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	return w.Body.String()
}

func TestNewPrometheusMetrics(t *testing.T) {
	for _, ns := range []string{"pdp", "policy_engine"} {
		t.Run(ns, func(t *testing.T) {
			m := NewPrometheusMetrics(ns)
			require.NotNil(t, m)

			m.RecordDecision("PERMIT", time.Microsecond)
			assert.Contains(t, scrape(t, m), ns+"_decisions_total")
		})
	}
}

func TestPrometheusMetrics_Decisions(t *testing.T) {
	m := NewPrometheusMetrics("pdp")

	m.RecordDecision("PERMIT", 5*time.Microsecond)
	m.RecordDecision("DENY", 3*time.Microsecond)
	m.RecordDecision("PERMIT", 7*time.Microsecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.decisions.WithLabelValues("PERMIT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisions.WithLabelValues("DENY")))
	assert.Equal(t, uint64(3), m.DecisionsTotal())

	body := scrape(t, m)
	assert.Contains(t, body, `pdp_decisions_total{value="PERMIT"} 2`)
	assert.Contains(t, body, "pdp_decision_duration_microseconds_count 3")
}

func TestPrometheusMetrics_CacheAndActive(t *testing.T) {
	m := NewPrometheusMetrics("pdp")

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.IncActiveRequests()
	m.IncActiveRequests()
	m.DecActiveRequests()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheMissesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeRequests))
}

func TestPrometheusMetrics_PolicyAndEnforcement(t *testing.T) {
	m := NewPrometheusMetrics("pdp")

	m.RecordReload("success")
	m.RecordReload("error")
	m.RecordReload("success")
	m.UpdatePolicyCount(7)
	m.RecordObligation("audit", "discharged")
	m.RecordObligation("audit", "failed")
	m.RecordDecisionError("no_policy")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.reloads.WithLabelValues("success")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.policyCount))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.obligations.WithLabelValues("audit", "failed")))

	expected := `
# HELP pdp_errors_total Total number of decision requests that failed by type
# TYPE pdp_errors_total counter
pdp_errors_total{type="no_policy"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pdp_errors_total"))
}

func TestNoOpMetrics(t *testing.T) {
	var m Metrics = NewNoOpMetrics()

	m.RecordDecision("PERMIT", time.Millisecond)
	m.RecordReload("success")
	m.RecordObligation("x", "missing")

	assert.Contains(t, scrape(t, m), "monitoring disabled")
}
