// Package metrics exposes Prometheus instruments for the quoting pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quote2move"

// Metrics holds every instrument. All methods are safe on a nil receiver so
// callers never need to guard optional metrics.
type Metrics struct {
	registry *prometheus.Registry

	phaseDuration  *prometheus.HistogramVec
	modelCalls     *prometheus.CounterVec
	modelCost      *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	anomalies      prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	breakerChanges *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"phase", "status"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by provider, stage and outcome.",
		}, []string{"provider", "stage", "outcome"}),
		modelCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cost_usd_total",
			Help:      "Estimated model spend in USD.",
		}, []string{"provider", "stage"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_fallbacks_total",
			Help:      "Estimates served by the deterministic fallback.",
		}, []string{"reason"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_anomalies_total",
			Help:      "Inventory anomalies flagged by validation.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_cache_lookups_total",
			Help:      "Estimate cache lookups by result.",
		}, []string{"result"}),
		breakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"service", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.phaseDuration, m.modelCalls, m.modelCost, m.fallbacks,
		m.anomalies, m.cacheLookups, m.breakerChanges,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(d.Seconds())
}

// ModelCall counts one model call and its cost.
func (m *Metrics) ModelCall(provider, stage, outcome string, costUSD float64) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(provider, stage, outcome).Inc()
	if costUSD > 0 {
		m.modelCost.WithLabelValues(provider, stage).Add(costUSD)
	}
}

// Fallback counts a degraded estimate.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// Anomalies adds n flagged anomalies.
func (m *Metrics) Anomalies(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.anomalies.Add(float64(n))
}

// CacheLookup counts an estimate cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// BreakerTransition counts a breaker moving to state to.
func (m *Metrics) BreakerTransition(service, to string) {
	if m == nil {
		return
	}
	m.breakerChanges.WithLabelValues(service, to).Inc()
}

// HTTPRequest counts one served request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
