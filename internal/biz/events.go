package biz

import (
	"context"
	"time"

	"FuseLane/internal/model"
)

// EventNotifier receives breaker lifecycle events for external consumers
// (alerting, dashboards). Implementations must not block the caller.
type EventNotifier interface {
	// NotifyCircuitOpened fires when a breaker trips or is forced OPEN.
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error

	// NotifyCircuitClosed fires when a breaker recovers to CLOSED.
	NotifyCircuitClosed(ctx context.Context, event *model.CircuitClosedEvent) error
}

// AuditLogger persists breaker state transitions for after-the-fact review.
// Implementations are asynchronous and best-effort.
type AuditLogger interface {
	// LogTransition records a state change with its trigger.
	LogTransition(ctx context.Context, name string, from, to model.BreakerState, reason string)

	// LogReset records a manual reset.
	LogReset(ctx context.Context, name string)
}

// MetricsSink receives the counters and latencies this core emits. Metric
// names follow "<name>.<event>" with event one of success, failure, opened,
// closed, rejected.
type MetricsSink interface {
	// IncrBreakerEvent counts a breaker event (success, failure, opened,
	// closed, rejected, probing).
	IncrBreakerEvent(name, event string)

	// IncrLimiterDecision counts a rate limit decision (allowed, rejected,
	// queued, fail_open, fail_closed).
	IncrLimiterDecision(identifier, decision string)

	// ObserveCallDuration records the latency of one protected call.
	ObserveCallDuration(identifier string, d time.Duration, success bool)

	// SetQueueDepth tracks the wait-queue length per identifier.
	SetQueueDepth(identifier string, depth int)

	// SetDegraded flags whether the limiter is on its memory fallback.
	SetDegraded(degraded bool)
}
