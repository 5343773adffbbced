package biz

import (
	"FuseLane/internal/conf"
	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBreakerRegistry,
	NewRequestQueueFromConf,
	NewRateLimiterFromConf,
	NewRetryExecutor,
)

// NewRequestQueueFromConf builds the wait queue from configuration and starts
// its drainer. The cleanup stops the drainer and evicts remaining waiters.
func NewRequestQueueFromConf(rc *conf.Resilience, clk clock.Clock, metrics MetricsSink,
	logger log.Logger) (*RequestQueue, func(), error) {
	q := NewRequestQueue(rc.RateLimit.QueueDrainInterval.AsDuration(), clk, metrics, logger)
	q.Start()
	return q, q.Stop, nil
}

// NewRateLimiterFromConf builds the limiter with the configured failure
// policy and retry budget.
func NewRateLimiterFromConf(rc *conf.Resilience, store *FailoverWindowStore, queue *RequestQueue,
	clk clock.Clock, metrics MetricsSink, logger log.Logger) *RateLimiter {
	failOpen := rc.RateLimit.Policy != "fail_closed"
	return NewRateLimiter(store, queue, failOpen, rc.RateLimit.MaxRetries, clk, metrics, logger)
}
