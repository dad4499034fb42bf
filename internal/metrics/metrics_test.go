package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ModelCall("anthropic", "detect", "ok", 0.02)
	m.ModelCall("anthropic", "detect", "ok", 0.03)
	m.ModelCall("gemini", "classify", "error", 0)
	m.Fallback("timeout")
	m.Anomalies(3)
	m.Anomalies(0)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.modelCalls.WithLabelValues("anthropic", "detect", "ok")))
	assert.InDelta(t, 0.05, testutil.ToFloat64(m.modelCost.WithLabelValues("anthropic", "detect")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.anomalies))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePhase("detect", "complete", time.Second)
		m.ModelCall("anthropic", "detect", "ok", 1)
		m.Fallback("x")
		m.Anomalies(1)
		m.CacheLookup(true)
		m.BreakerTransition("anthropic", "open")
		m.HTTPRequest("GET", "/health", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObservePhase("classify", "complete", 250*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "quote2move_phase_duration_seconds")
}

func TestMetrics_HTTPRequest(t *testing.T) {
	m := New()
	m.HTTPRequest("POST", "/v1/estimates", 200, 20*time.Millisecond)
	m.HTTPRequest("POST", "/v1/estimates", 200, 30*time.Millisecond)
	m.HTTPRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/v1/estimates", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}
