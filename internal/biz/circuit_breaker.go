package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"FuseLane/internal/model"
	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
)

// Operation is a protected call against an external dependency.
type Operation func(ctx context.Context) (interface{}, error)

// Fallback produces a substitute result when the circuit is open or the
// operation failed and tripped it. cause carries the triggering error.
type Fallback func(ctx context.Context, cause error) (interface{}, error)

// CircuitBreaker isolates one external dependency behind a
// CLOSED/OPEN/HALF_OPEN state machine. State is owned exclusively by this
// instance and mutated only by its success/failure handlers.
type CircuitBreaker struct {
	name     string
	cfg      model.BreakerConfig
	clk      clock.Clock
	logger   *log.Helper
	metrics  MetricsSink
	audit    AuditLogger
	notifier EventNotifier

	mu              sync.Mutex
	state           model.BreakerState
	failureCount    int
	successCount    int
	lastFailureTime *time.Time
	lastSuccessTime *time.Time
	nextAttemptTime time.Time
	openedAt        time.Time
	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	createdAt       time.Time
}

// NewCircuitBreaker creates a breaker in CLOSED state. The config must have
// been validated by the registry.
func NewCircuitBreaker(name string, cfg model.BreakerConfig, clk clock.Clock, logger log.Logger,
	metrics MetricsSink, audit AuditLogger, notifier EventNotifier) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		cfg:       cfg,
		clk:       clk,
		logger:    log.NewHelper(logger),
		metrics:   metrics,
		audit:     audit,
		notifier:  notifier,
		state:     model.StateClosed,
		createdAt: clk.Now(),
	}
}

// Name returns the breaker's dependency name.
func (b *CircuitBreaker) Name() string { return b.name }

// State returns the current state.
func (b *CircuitBreaker) State() model.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsAvailable reports whether calls currently pass through (CLOSED or
// HALF_OPEN).
func (b *CircuitBreaker) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != model.StateOpen
}

// Execute runs op through the breaker. While OPEN and before the next
// attempt time, op is never invoked: the fallback result is returned if one
// was supplied, else a CircuitOpenError. Once the open timeout elapses the
// breaker moves to HALF_OPEN and lets op through as a probe.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback Fallback) (interface{}, error) {
	b.mu.Lock()
	b.totalRequests++
	now := b.clk.Now()

	if b.state == model.StateOpen {
		if now.Before(b.nextAttemptTime) {
			retryAfter := b.nextAttemptTime.Sub(now)
			b.mu.Unlock()
			b.metrics.IncrBreakerEvent(b.name, "rejected")
			openErr := &CircuitOpenError{Name: b.name, RetryAfter: retryAfter}
			if fallback != nil {
				b.logger.Warnw("msg", "circuit open, serving fallback",
					"type", "fallback", "breaker", b.name, "retry_after", retryAfter)
				return fallback(ctx, openErr)
			}
			return nil, openErr
		}
		// Open timeout elapsed: probe.
		b.transitionLocked(model.StateHalfOpen, "open timeout elapsed")
	}
	b.mu.Unlock()

	result, err := op(ctx)
	if err == nil {
		b.onSuccess()
		return result, nil
	}

	b.onFailure(err)

	if fallback != nil && b.State() == model.StateOpen {
		b.logger.Warnw("msg", "operation failed and circuit opened, serving fallback",
			"type", "fallback", "breaker", b.name, "error", err.Error())
		return fallback(ctx, err)
	}
	return nil, err
}

// ExecuteWithRetry repeats Execute up to maxRetries+1 times with exponential
// backoff (backoff * 2^attempt between attempts). A CircuitOpenError stops
// retrying immediately.
func (b *CircuitBreaker) ExecuteWithRetry(ctx context.Context, op Operation, maxRetries int,
	backoff time.Duration, fallback Fallback) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := b.Execute(ctx, op, fallback)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var openErr *CircuitOpenError
		if errors.As(err, &openErr) {
			return nil, err
		}

		if attempt < maxRetries {
			wait := backoff << uint(attempt)
			b.logger.Debugw("msg", "retrying after backoff",
				"breaker", b.name, "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, lastErr
}

// onSuccess records a successful call and drives HALF_OPEN → CLOSED.
func (b *CircuitBreaker) onSuccess() {
	b.mu.Lock()
	now := b.clk.Now()
	b.totalSuccesses++
	b.lastSuccessTime = &now

	switch b.state {
	case model.StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			probes := b.successCount
			openFor := now.Sub(b.openedAt)
			b.transitionLocked(model.StateClosed, fmt.Sprintf("%d consecutive probe successes", probes))
			b.failureCount = 0
			b.successCount = 0
			b.mu.Unlock()
			b.metrics.IncrBreakerEvent(b.name, "success")
			_ = b.notifier.NotifyCircuitClosed(context.Background(), &model.CircuitClosedEvent{
				Name:         b.name,
				ProbeCount:   probes,
				OpenDuration: openFor,
				ClosedAt:     now,
			})
			return
		}
	case model.StateClosed:
		// A success clears accumulated failure history.
		b.failureCount = 0
	}
	b.mu.Unlock()
	b.metrics.IncrBreakerEvent(b.name, "success")
}

// onFailure records a failed call and drives CLOSED → OPEN and
// HALF_OPEN → OPEN. Errors matching ExpectedErrors are logged but exempt
// from the failure tally.
func (b *CircuitBreaker) onFailure(err error) {
	if b.isExpected(err) {
		b.logger.Debugw("msg", "expected error, not counted against circuit",
			"breaker", b.name, "error", err.Error())
		return
	}

	b.mu.Lock()
	now := b.clk.Now()
	b.totalFailures++

	// Failures must accumulate within the monitoring period: a longer gap
	// since the previous failure discards the running tally.
	if b.lastFailureTime != nil && now.Sub(*b.lastFailureTime) > b.cfg.MonitoringPeriod {
		b.failureCount = 0
	}
	b.lastFailureTime = &now
	b.failureCount++

	opened := false
	switch b.state {
	case model.StateHalfOpen:
		// Any counted failure during probing reopens immediately.
		b.openLocked(now, "probe failure while half-open")
		opened = true
	case model.StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.openLocked(now, fmt.Sprintf("%d failures within monitoring period", b.failureCount))
			opened = true
		}
	}
	failures := b.failureCount
	nextAttempt := b.nextAttemptTime
	b.mu.Unlock()

	b.metrics.IncrBreakerEvent(b.name, "failure")
	if opened {
		_ = b.notifier.NotifyCircuitOpened(context.Background(), &model.CircuitOpenedEvent{
			Name:            b.name,
			FailureCount:    failures,
			NextAttemptTime: nextAttempt,
			OpenedAt:        now,
		})
	}
}

// openLocked trips the circuit. Caller holds b.mu.
func (b *CircuitBreaker) openLocked(now time.Time, reason string) {
	b.nextAttemptTime = now.Add(b.cfg.OpenTimeout)
	b.openedAt = now
	b.successCount = 0
	b.transitionLocked(model.StateOpen, reason)
}

// transitionLocked moves the state machine and emits the transition to the
// log, metrics and audit sinks. Caller holds b.mu.
func (b *CircuitBreaker) transitionLocked(to model.BreakerState, reason string) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	b.logger.Infow("msg", "circuit state transition",
		"type", "circuit",
		"breaker", b.name,
		"from", string(from),
		"to", string(to),
		"reason", reason)

	switch to {
	case model.StateOpen:
		b.metrics.IncrBreakerEvent(b.name, "opened")
	case model.StateClosed:
		b.metrics.IncrBreakerEvent(b.name, "closed")
	case model.StateHalfOpen:
		b.metrics.IncrBreakerEvent(b.name, "probing")
	}
	b.audit.LogTransition(context.Background(), b.name, from, to, reason)
}

// isExpected reports whether err matches the config's exempted error
// signatures, by concrete type name or message fragment.
func (b *CircuitBreaker) isExpected(err error) bool {
	if len(b.cfg.ExpectedErrors) == 0 {
		return false
	}
	typeName := fmt.Sprintf("%T", err)
	msg := err.Error()
	for _, pattern := range b.cfg.ExpectedErrors {
		if pattern == "" {
			continue
		}
		if typeName == pattern || strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// GetMetrics returns a snapshot of the breaker's counters and state.
func (b *CircuitBreaker) GetMetrics() *model.BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := &model.BreakerMetrics{
		Name:           b.name,
		State:          b.state,
		FailureCount:   b.failureCount,
		SuccessCount:   b.successCount,
		TotalRequests:  b.totalRequests,
		TotalFailures:  b.totalFailures,
		TotalSuccesses: b.totalSuccesses,
		UptimeMs:       b.clk.Now().Sub(b.createdAt).Milliseconds(),
	}
	if b.lastFailureTime != nil {
		t := *b.lastFailureTime
		m.LastFailureTime = &t
	}
	if b.lastSuccessTime != nil {
		t := *b.lastSuccessTime
		m.LastSuccessTime = &t
	}
	if b.state == model.StateOpen {
		t := b.nextAttemptTime
		m.NextAttemptTime = &t
	}
	return m
}

// Reset forces the breaker back to CLOSED and clears all counters. This is
// a manual operational override.
func (b *CircuitBreaker) Reset(ctx context.Context) {
	b.mu.Lock()
	b.transitionLocked(model.StateClosed, "manual reset")
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = nil
	b.nextAttemptTime = time.Time{}
	b.mu.Unlock()

	b.audit.LogReset(ctx, b.name)
	b.logger.Infow("msg", "circuit breaker reset", "type", "circuit", "breaker", b.name)
}

// ForceOpen trips the circuit manually, e.g. ahead of a known downstream
// maintenance window.
func (b *CircuitBreaker) ForceOpen(ctx context.Context) {
	b.mu.Lock()
	now := b.clk.Now()
	b.openLocked(now, model.ReasonForcedOpen)
	nextAttempt := b.nextAttemptTime
	b.mu.Unlock()

	_ = b.notifier.NotifyCircuitOpened(ctx, &model.CircuitOpenedEvent{
		Name:            b.name,
		NextAttemptTime: nextAttempt,
		OpenedAt:        now,
	})
}
