package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"FuseLane/internal/model"
	"FuseLane/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFixture struct {
	executor *RetryExecutor
	registry *BreakerRegistry
	clk      *clock.Fake
}

func newExecutorFixture() *executorFixture {
	clk := clock.NewFake(time.Now())
	remote := newFakeWindowStore()
	local := newFakeWindowStore()
	store := NewFailoverWindowStore(remote, local, &fakeProber{}, nopMetrics{}, testLogger())
	queue := NewRequestQueue(10*time.Millisecond, clk, nopMetrics{}, testLogger())
	limiter := NewRateLimiter(store, queue, true, 3, clk, nopMetrics{}, testLogger())
	registry := NewBreakerRegistry(testLogger(), clk, nopMetrics{}, &recordingAudit{}, &recordingNotifier{})
	return &executorFixture{
		executor: NewRetryExecutor(limiter, registry, testLogger()),
		registry: registry,
		clk:      clk,
	}
}

// A healthy call passes both layers exactly once.
func TestRetryExecutor_Run(t *testing.T) {
	f := newExecutorFixture()

	calls := 0
	result, err := f.executor.Run(context.Background(), limitConfig(10),
		func(context.Context) (interface{}, error) {
			calls++
			return 42, nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)

	// The breaker was created under the identifier's name.
	assert.Contains(t, f.registry.AllMetrics(), "external_api:weather")
}

// A tripped breaker stops the limiter's retry loop immediately: the open
// circuit is not a throttling signal.
func TestRetryExecutor_OpenCircuitStopsRetries(t *testing.T) {
	f := newExecutorFixture()
	ctx := context.Background()
	cfg := limitConfig(100)

	b := f.registry.GetBreaker(cfg.Identifier)
	b.ForceOpen(ctx)

	calls := 0
	_, err := f.executor.Run(ctx, cfg, func(context.Context) (interface{}, error) {
		calls++
		return nil, nil
	}, nil)

	var openErr *CircuitOpenError
	assert.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, calls)
}

// Upstream failures count against the breaker through the composed path.
func TestRetryExecutor_FailuresTripBreaker(t *testing.T) {
	f := newExecutorFixture()
	ctx := context.Background()
	cfg := limitConfig(100)
	boom := errors.New("upstream down")

	// external_api default threshold is 3.
	for i := 0; i < 3; i++ {
		_, err := f.executor.Run(ctx, cfg, func(context.Context) (interface{}, error) {
			return nil, boom
		}, nil)
		assert.Error(t, err)
	}

	b := f.registry.GetBreaker(cfg.Identifier)
	assert.Equal(t, model.StateOpen, b.State())
}

// A fallback flows through to the breaker layer.
func TestRetryExecutor_Fallback(t *testing.T) {
	f := newExecutorFixture()
	ctx := context.Background()
	cfg := limitConfig(100)

	f.registry.GetBreaker(cfg.Identifier).ForceOpen(ctx)

	result, err := f.executor.Run(ctx, cfg,
		func(context.Context) (interface{}, error) { return nil, nil },
		func(context.Context, error) (interface{}, error) { return "stale", nil })

	require.NoError(t, err)
	assert.Equal(t, "stale", result)
}

// RunWithBreakerConfig applies explicit tuning on first use.
func TestRetryExecutor_RunWithBreakerConfig(t *testing.T) {
	f := newExecutorFixture()
	ctx := context.Background()
	cfg := limitConfig(100)
	boom := errors.New("flaky")

	breakerCfg := &model.BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		MonitoringPeriod: time.Minute,
	}
	_, err := f.executor.RunWithBreakerConfig(ctx, cfg, breakerCfg,
		func(context.Context) (interface{}, error) { return nil, boom }, nil)
	assert.Error(t, err)

	assert.Equal(t, model.StateOpen, f.registry.GetBreaker(cfg.Identifier).State())
}

// RunBatch guards every item with the shared breaker.
func TestRetryExecutor_RunBatch(t *testing.T) {
	f := newExecutorFixture()
	cfg := limitConfig(100)
	cfg.Window = 10 * time.Millisecond

	items := []interface{}{1, 2, 3}
	results := f.executor.RunBatch(context.Background(), items,
		func(_ context.Context, item interface{}) (interface{}, error) {
			return item.(int) * 2, nil
		}, cfg, 2)

	require.Len(t, results, 3)
	for i, item := range items {
		assert.NoError(t, results[i].Err)
		assert.Equal(t, item.(int)*2, results[i].Value)
	}
}
