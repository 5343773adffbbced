package data

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements biz.MetricsSink. It owns a private Registry
// rather than the package-global default so repeated construction (tests,
// embedded use) never hits duplicate-registration panics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	breakerEvents    *prometheus.CounterVec
	limiterDecisions *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
	degraded         prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		breakerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuselane_breaker_events_total",
			Help: "Circuit breaker events (success, failure, opened, closed, rejected, probing) per breaker.",
		}, []string{"breaker", "event"}),
		limiterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuselane_ratelimit_decisions_total",
			Help: "Rate limit decisions (allowed, rejected, queued, fail_open, fail_closed) per identifier.",
		}, []string{"identifier", "decision"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fuselane_call_duration_seconds",
			Help:    "Latency of protected calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"identifier", "outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fuselane_queue_depth",
			Help: "Current wait-queue depth per identifier.",
		}, []string{"identifier"}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fuselane_ratelimit_degraded",
			Help: "1 while the limiter counts on its in-memory fallback.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.breakerEvents,
		m.limiterDecisions,
		m.callDuration,
		m.queueDepth,
		m.degraded,
	)
	return m
}

// IncrBreakerEvent implements biz.MetricsSink.
func (m *PrometheusMetrics) IncrBreakerEvent(name, event string) {
	m.breakerEvents.WithLabelValues(name, event).Inc()
}

// IncrLimiterDecision implements biz.MetricsSink.
func (m *PrometheusMetrics) IncrLimiterDecision(identifier, decision string) {
	m.limiterDecisions.WithLabelValues(identifier, decision).Inc()
}

// ObserveCallDuration implements biz.MetricsSink.
func (m *PrometheusMetrics) ObserveCallDuration(identifier string, d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.callDuration.WithLabelValues(identifier, outcome).Observe(d.Seconds())
}

// SetQueueDepth implements biz.MetricsSink.
func (m *PrometheusMetrics) SetQueueDepth(identifier string, depth int) {
	m.queueDepth.WithLabelValues(identifier).Set(float64(depth))
}

// SetDegraded implements biz.MetricsSink.
func (m *PrometheusMetrics) SetDegraded(degraded bool) {
	if degraded {
		m.degraded.Set(1)
	} else {
		m.degraded.Set(0)
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
