package biz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"FuseLane/internal/model"
	"FuseLane/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingOp(ctx context.Context) (interface{}, error) { return nil, errBoom }
func okOp(ctx context.Context) (interface{}, error)      { return "ok", nil }

func baseConfig() model.BreakerConfig {
	return model.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
		MonitoringPeriod: 120 * time.Second,
	}
}

// Breaker starts CLOSED and passes calls through.
func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)

	result, err := b.Execute(context.Background(), okOp, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, model.StateClosed, b.State())
	assert.True(t, b.IsAvailable())
}

// Breaker opens after FailureThreshold failures within the monitoring period.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, notifier, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Execute(ctx, failingOp, nil)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, model.StateClosed, b.State())
	}

	_, err := b.Execute(ctx, failingOp, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, model.StateOpen, b.State())
	assert.False(t, b.IsAvailable())
	assert.Equal(t, 1, notifier.openedCount())
}

// While OPEN the operation is never invoked.
func TestCircuitBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(ctx, failingOp, nil)
	}
	require.Equal(t, model.StateOpen, b.State())

	invoked := false
	_, err := b.Execute(ctx, func(context.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	}, nil)

	assert.False(t, invoked)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "external_api:test", openErr.Name)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
}

// While OPEN a supplied fallback is served instead of the error.
func TestCircuitBreaker_OpenServesFallback(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(ctx, failingOp, nil)
	}
	require.Equal(t, model.StateOpen, b.State())

	result, err := b.Execute(ctx, failingOp, func(_ context.Context, cause error) (interface{}, error) {
		var openErr *CircuitOpenError
		assert.ErrorAs(t, cause, &openErr)
		return "cached", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", result)
}

// After OpenTimeout the breaker probes in HALF_OPEN and closes after
// SuccessThreshold consecutive successes.
func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, notifier, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(ctx, failingOp, nil)
	}
	require.Equal(t, model.StateOpen, b.State())

	clk.Advance(61 * time.Second)

	_, err := b.Execute(ctx, okOp, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StateHalfOpen, b.State())

	_, err = b.Execute(ctx, okOp, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StateClosed, b.State())
	assert.Equal(t, 1, notifier.closedCount())

	// Counters were reset on close.
	m := b.GetMetrics()
	assert.Equal(t, 0, m.FailureCount)
	assert.Equal(t, 0, m.SuccessCount)
}

// A failure during HALF_OPEN reopens immediately.
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, notifier, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(ctx, failingOp, nil)
	}
	clk.Advance(61 * time.Second)

	_, err := b.Execute(ctx, failingOp, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, model.StateOpen, b.State())
	assert.Equal(t, 2, notifier.openedCount())
}

// Failures separated by more than MonitoringPeriod do not accumulate.
func TestCircuitBreaker_MonitoringPeriodResetsTally(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cfg := model.BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		MonitoringPeriod: 100 * time.Millisecond,
	}
	b, _, _ := newTestBreaker(cfg, clk)
	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	assert.Equal(t, model.StateClosed, b.State())

	// Gap longer than the monitoring period: the earlier failure is stale.
	clk.Advance(150 * time.Millisecond)
	_, _ = b.Execute(ctx, failingOp, nil)
	assert.Equal(t, model.StateClosed, b.State())

	// Two failures inside the period trip it.
	clk.Advance(50 * time.Millisecond)
	_, _ = b.Execute(ctx, failingOp, nil)
	assert.Equal(t, model.StateOpen, b.State())
}

// A success in CLOSED clears the accumulated failure count.
func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	_, _ = b.Execute(ctx, failingOp, nil)
	_, _ = b.Execute(ctx, okOp, nil)
	_, _ = b.Execute(ctx, failingOp, nil)
	_, _ = b.Execute(ctx, failingOp, nil)

	assert.Equal(t, model.StateClosed, b.State())
}

// Errors matching ExpectedErrors never count against the circuit.
func TestCircuitBreaker_ExpectedErrorsExempt(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cfg := baseConfig()
	cfg.ExpectedErrors = []string{"not found", "*biz.QueueOverflowError"}
	b, _, _ := newTestBreaker(cfg, clk)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := b.Execute(ctx, func(context.Context) (interface{}, error) {
			return nil, fmt.Errorf("user 42 not found")
		}, nil)
		assert.Error(t, err)
	}
	assert.Equal(t, model.StateClosed, b.State())

	// Type-name match.
	for i := 0; i < 10; i++ {
		_, _ = b.Execute(ctx, func(context.Context) (interface{}, error) {
			return nil, &QueueOverflowError{Identifier: "x", QueueSize: 1}
		}, nil)
	}
	assert.Equal(t, model.StateClosed, b.State())
}

// ExecuteWithRetry retries with backoff and stops on success.
func TestCircuitBreaker_ExecuteWithRetry(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)

	calls := 0
	result, err := b.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errBoom
		}
		return "done", nil
	}, 3, time.Millisecond, nil)

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)
}

// ExecuteWithRetry stops immediately once the circuit opens.
func TestCircuitBreaker_ExecuteWithRetryStopsWhenOpen(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(ctx, failingOp, nil)
	}
	require.Equal(t, model.StateOpen, b.State())

	calls := 0
	_, err := b.ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
		calls++
		return nil, errBoom
	}, 5, time.Millisecond, nil)

	var openErr *CircuitOpenError
	assert.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, calls)
}

// Reset forces OPEN back to CLOSED and records the manual override.
func TestCircuitBreaker_Reset(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, audit := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(ctx, failingOp, nil)
	}
	require.Equal(t, model.StateOpen, b.State())

	b.Reset(ctx)
	assert.Equal(t, model.StateClosed, b.State())
	assert.Contains(t, audit.resets, "external_api:test")

	_, err := b.Execute(ctx, okOp, nil)
	assert.NoError(t, err)
}

// ForceOpen trips a healthy breaker and audits the manual reason.
func TestCircuitBreaker_ForceOpen(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, notifier, audit := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	b.ForceOpen(ctx)
	assert.Equal(t, model.StateOpen, b.State())
	assert.Equal(t, 1, notifier.openedCount())
	assert.Contains(t, audit.reasons, model.ReasonForcedOpen)

	invoked := false
	_, err := b.Execute(ctx, func(context.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	}, nil)
	assert.Error(t, err)
	assert.False(t, invoked)
}

// GetMetrics exposes the running counters.
func TestCircuitBreaker_GetMetrics(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b, _, _ := newTestBreaker(baseConfig(), clk)
	ctx := context.Background()

	_, _ = b.Execute(ctx, okOp, nil)
	_, _ = b.Execute(ctx, failingOp, nil)

	m := b.GetMetrics()
	assert.Equal(t, "external_api:test", m.Name)
	assert.Equal(t, model.StateClosed, m.State)
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.Equal(t, int64(1), m.TotalSuccesses)
	assert.Equal(t, int64(1), m.TotalFailures)
	assert.NotNil(t, m.LastFailureTime)
	assert.NotNil(t, m.LastSuccessTime)
	assert.Nil(t, m.NextAttemptTime)

	// Uptime is reported in milliseconds.
	clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, int64(1500), b.GetMetrics().UptimeMs)
}
