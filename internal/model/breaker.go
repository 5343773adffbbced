package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	// StateClosed passes calls through and counts failures.
	StateClosed BreakerState = "CLOSED"
	// StateOpen short-circuits calls to the fallback or fails fast.
	StateOpen BreakerState = "OPEN"
	// StateHalfOpen lets probe calls through to test recovery.
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig controls when a circuit opens and how it recovers.
type BreakerConfig struct {
	// FailureThreshold is the number of counted failures within
	// MonitoringPeriod that trips the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit again.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays OPEN before the next call
	// is allowed through as a probe.
	OpenTimeout time.Duration
	// MonitoringPeriod bounds how fresh failures must be to accumulate;
	// a gap longer than this discards the running failure tally.
	MonitoringPeriod time.Duration
	// ExpectedErrors lists error signatures (type name or message fragment)
	// that are survivable and never trip the breaker.
	ExpectedErrors []string
}

// Validate checks the config for nonsensical values.
func (c BreakerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.SuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.OpenTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MonitoringPeriod, validation.Required, validation.Min(time.Millisecond)),
	)
}

// BreakerMetrics is a point-in-time snapshot of one breaker.
type BreakerMetrics struct {
	Name            string       `json:"name"`
	State           BreakerState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime *time.Time   `json:"last_failure_time,omitempty"`
	LastSuccessTime *time.Time   `json:"last_success_time,omitempty"`
	NextAttemptTime *time.Time   `json:"next_attempt_time,omitempty"`
	TotalRequests   int64        `json:"total_requests"`
	TotalFailures   int64        `json:"total_failures"`
	TotalSuccesses  int64        `json:"total_successes"`
	UptimeMs        int64        `json:"uptime_ms"`
}
