package model

import "time"

// Audit event type constants
const (
	AuditEventCircuitOpened  = "CIRCUIT_OPENED"
	AuditEventCircuitClosed  = "CIRCUIT_CLOSED"
	AuditEventCircuitProbing = "CIRCUIT_PROBING"
	AuditEventCircuitForced  = "CIRCUIT_FORCED_OPEN"
	AuditEventCircuitReset   = "CIRCUIT_RESET"
)

// ReasonForcedOpen is the transition reason a manual ForceOpen records; the
// audit trail distinguishes it from a threshold trip.
const ReasonForcedOpen = "forced open"

// CircuitOpenedEvent is emitted when a breaker trips (or is forced) OPEN.
type CircuitOpenedEvent struct {
	Name            string
	FailureCount    int
	NextAttemptTime time.Time
	OpenedAt        time.Time
}

// CircuitClosedEvent is emitted when a breaker recovers to CLOSED.
type CircuitClosedEvent struct {
	Name         string
	ProbeCount   int
	OpenDuration time.Duration
	ClosedAt     time.Time
}
