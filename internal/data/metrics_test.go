package data

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Repeated construction must not panic: the sink owns a private registry.
func TestPrometheusMetrics_IndependentRegistries(t *testing.T) {
	m1 := NewPrometheusMetrics()
	m2 := NewPrometheusMetrics()
	assert.NotSame(t, m1, m2)
}

// The sink records without panicking and the handler serves the families.
func TestPrometheusMetrics_RecordAndServe(t *testing.T) {
	m := NewPrometheusMetrics()

	m.IncrBreakerEvent("database:users", "opened")
	m.IncrLimiterDecision("external_api:weather", "allowed")
	m.ObserveCallDuration("external_api:weather", 120*time.Millisecond, true)
	m.ObserveCallDuration("external_api:weather", 80*time.Millisecond, false)
	m.SetQueueDepth("external_api:weather", 3)
	m.SetDegraded(true)
	m.SetDegraded(false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "fuselane_breaker_events_total")
	assert.Contains(t, body, "fuselane_ratelimit_decisions_total")
	assert.Contains(t, body, "fuselane_call_duration_seconds")
	assert.Contains(t, body, "fuselane_queue_depth")
	assert.Contains(t, body, "fuselane_ratelimit_degraded")
}
