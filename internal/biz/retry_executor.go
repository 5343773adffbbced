package biz

import (
	"context"

	"FuseLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// RetryExecutor composes the rate limiter and the breaker registry into one
// entry point: a call first acquires a window slot (queuing or backing off as
// configured), then passes through the circuit breaker named after the
// identifier. Breaker trips surface to the limiter as ordinary errors, so a
// tripped dependency does not burn retry budget on calls that cannot succeed:
// the CircuitOpenError is not a throttling signal and is rethrown at once.
type RetryExecutor struct {
	limiter  *RateLimiter
	registry *BreakerRegistry
	logger   *log.Helper
}

// NewRetryExecutor wires the two resilience layers together.
func NewRetryExecutor(limiter *RateLimiter, registry *BreakerRegistry, logger log.Logger) *RetryExecutor {
	return &RetryExecutor{
		limiter:  limiter,
		registry: registry,
		logger:   log.NewHelper(logger),
	}
}

// Run executes op for cfg.Identifier under rate limiting and circuit
// breaking. fallback may be nil.
func (e *RetryExecutor) Run(ctx context.Context, cfg model.RateLimitConfig,
	op Operation, fallback Fallback) (interface{}, error) {
	return e.RunWithBreakerConfig(ctx, cfg, nil, op, fallback)
}

// RunWithBreakerConfig is Run with explicit breaker tuning for the first use
// of this identifier. An already-registered breaker keeps its config.
func (e *RetryExecutor) RunWithBreakerConfig(ctx context.Context, cfg model.RateLimitConfig,
	breakerCfg *model.BreakerConfig, op Operation, fallback Fallback) (interface{}, error) {
	breaker, err := e.registry.GetBreakerWithConfig(cfg.Identifier, breakerCfg)
	if err != nil {
		return nil, err
	}
	return e.limiter.ExecuteWithRateLimit(ctx, func(c context.Context) (interface{}, error) {
		return breaker.Execute(c, op, fallback)
	}, cfg, 0)
}

// RunBatch executes call over items in rate-limited chunks, each item guarded
// by the identifier's breaker.
func (e *RetryExecutor) RunBatch(ctx context.Context, items []interface{},
	call func(ctx context.Context, item interface{}) (interface{}, error),
	cfg model.RateLimitConfig, batchSize int) map[int]BatchResult {
	breaker := e.registry.GetBreaker(cfg.Identifier)
	return e.limiter.BatchExecute(ctx, items, func(c context.Context, item interface{}) (interface{}, error) {
		return breaker.Execute(c, func(c2 context.Context) (interface{}, error) {
			return call(c2, item)
		}, nil)
	}, cfg, batchSize)
}
