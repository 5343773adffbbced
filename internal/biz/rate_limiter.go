package biz

import (
	"context"
	"sync"
	"time"

	"FuseLane/internal/model"
	"FuseLane/pkg/clock"
	upstream "FuseLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// maxLimiterBackoff caps the exponential sleep after a local rejection.
	maxLimiterBackoff = 30 * time.Second
	// maxUpstreamBackoff caps the sleep after an upstream 429-equivalent.
	maxUpstreamBackoff = 16 * time.Second
	// upstreamBaseBackoff seeds the upstream throttle backoff.
	upstreamBaseBackoff = 1 * time.Second
	// defaultBatchSize is used when BatchExecute gets no chunk size.
	defaultBatchSize = 10
)

// APICall is the operation executed under rate limiting.
type APICall func(ctx context.Context) (interface{}, error)

// RateLimiter enforces sliding-window limits per identifier, with optional
// queuing for over-limit requests and an availability-first policy when the
// counting backend itself fails.
type RateLimiter struct {
	store      *FailoverWindowStore
	queue      *RequestQueue
	clk        clock.Clock
	logger     *log.Helper
	metrics    MetricsSink
	failOpen   bool
	maxRetries int
}

// NewRateLimiter creates a limiter. failOpen selects what happens when the
// limit check itself errors: true allows the request (availability over
// enforcement), false rejects it for a full window.
func NewRateLimiter(store *FailoverWindowStore, queue *RequestQueue, failOpen bool,
	maxRetries int, clk clock.Clock, metrics MetricsSink, logger log.Logger) *RateLimiter {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RateLimiter{
		store:      store,
		queue:      queue,
		clk:        clk,
		logger:     log.NewHelper(logger),
		metrics:    metrics,
		failOpen:   failOpen,
		maxRetries: maxRetries,
	}
}

// CheckRateLimit counts the request against its identifier's sliding window
// and decides whether it may proceed now, must wait in the queue, or should
// retry later. A QueueOverflowError is returned when queuing is configured
// but full.
func (l *RateLimiter) CheckRateLimit(ctx context.Context, cfg model.RateLimitConfig) (*model.RateLimitResult, error) {
	result, _, err := l.check(ctx, cfg)
	return result, err
}

// check is CheckRateLimit plus the queue ticket for callers that intend to
// wait for their slot.
func (l *RateLimiter) check(ctx context.Context, cfg model.RateLimitConfig) (*model.RateLimitResult, *QueueTicket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	now := l.clk.Now()
	count, ttl, err := l.store.CheckAndIncrement(ctx, cfg.Identifier, cfg.Window)
	if err != nil {
		// The check itself failed with no fallback path left. Policy decides:
		// fail-open favors availability, fail-closed favors enforcement.
		// Either way the error is absorbed, never surfaced.
		if l.failOpen {
			l.logger.Errorw("msg", "rate limit check failed, failing open",
				"type", "degraded", "identifier", cfg.Identifier, "error", err.Error())
			l.metrics.IncrLimiterDecision(cfg.Identifier, "fail_open")
			return &model.RateLimitResult{
				Allowed:           true,
				RemainingRequests: cfg.EffectiveLimit(),
				ResetTime:         now.Add(cfg.Window),
			}, nil, nil
		}
		l.logger.Errorw("msg", "rate limit check failed, failing closed",
			"type", "degraded", "identifier", cfg.Identifier, "error", err.Error())
		l.metrics.IncrLimiterDecision(cfg.Identifier, "fail_closed")
		return &model.RateLimitResult{
			Allowed:    false,
			ResetTime:  now.Add(cfg.Window),
			RetryAfter: cfg.Window,
		}, nil, nil
	}

	limit := cfg.EffectiveLimit()
	if count <= limit {
		l.metrics.IncrLimiterDecision(cfg.Identifier, "allowed")
		return &model.RateLimitResult{
			Allowed:           true,
			RemainingRequests: limit - count,
			ResetTime:         now.Add(ttl),
		}, nil, nil
	}

	if cfg.QueueSize > 0 {
		ticket, qerr := l.queue.Enqueue(cfg.Identifier, cfg.Priority, cfg.QueueSize)
		if qerr != nil {
			l.metrics.IncrLimiterDecision(cfg.Identifier, "rejected")
			return nil, nil, qerr
		}
		// Estimated wait: one window slot per queued position.
		retryAfter := time.Duration(int64(cfg.Window) * int64(ticket.Position) / int64(cfg.MaxRequests))
		l.metrics.IncrLimiterDecision(cfg.Identifier, "queued")
		l.logger.Warnw("msg", "rate limit exceeded, request queued",
			"type", "rate_limit",
			"identifier", cfg.Identifier,
			"count", count,
			"limit", limit,
			"position", ticket.Position)
		return &model.RateLimitResult{
			Allowed:       false,
			ResetTime:     now.Add(ttl),
			RetryAfter:    retryAfter,
			QueuePosition: ticket.Position,
		}, ticket, nil
	}

	// No queue: reject with the time left until the window rolls over.
	windowMs := cfg.Window.Milliseconds()
	retryAfter := time.Duration(windowMs-now.UnixMilli()%windowMs) * time.Millisecond
	l.metrics.IncrLimiterDecision(cfg.Identifier, "rejected")
	l.logger.Warnw("msg", "rate limit exceeded",
		"type", "rate_limit",
		"identifier", cfg.Identifier,
		"count", count,
		"limit", limit,
		"retry_after", retryAfter)
	return &model.RateLimitResult{
		Allowed:    false,
		ResetTime:  now.Add(ttl),
		RetryAfter: retryAfter,
	}, nil, nil
}

// ExecuteWithRateLimit runs call under the identifier's limit, waiting in
// the queue or backing off between attempts. Upstream throttling signals
// (429-equivalents) get their own capped backoff; any other upstream error
// is rethrown immediately.
func (l *RateLimiter) ExecuteWithRateLimit(ctx context.Context, call APICall,
	cfg model.RateLimitConfig, maxRetries int) (interface{}, error) {
	if maxRetries <= 0 {
		maxRetries = l.maxRetries
	}

	var lastRetryAfter time.Duration
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, ticket, err := l.check(ctx, cfg)
		if err != nil {
			return nil, err
		}

		if !result.Allowed {
			lastRetryAfter = result.RetryAfter
			if ticket != nil {
				l.logger.Debugw("msg", "waiting for queue slot",
					"type", "queue",
					"identifier", cfg.Identifier,
					"position", ticket.Position)
				if werr := ticket.Wait(ctx); werr != nil {
					return nil, werr
				}
				// Drained: the window may have moved on, check again.
				continue
			}
			wait := capDuration(result.RetryAfter<<uint(attempt), maxLimiterBackoff)
			if serr := sleepCtx(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}

		start := l.clk.Now()
		out, callErr := call(ctx)
		l.metrics.ObserveCallDuration(cfg.Identifier, l.clk.Now().Sub(start), callErr == nil)
		if callErr == nil {
			return out, nil
		}

		if upstream.IsRateLimited(callErr) {
			wait := capDuration(upstreamBaseBackoff<<uint(attempt), maxUpstreamBackoff)
			l.logger.Warnw("msg", "upstream is rate limiting, backing off",
				"type", "rate_limit",
				"identifier", cfg.Identifier,
				"attempt", attempt+1,
				"backoff", wait)
			if serr := sleepCtx(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}
		// Not a throttling signal: record and rethrow without further retries.
		return nil, callErr
	}

	return nil, &RateLimitExceededError{Identifier: cfg.Identifier, RetryAfter: lastRetryAfter}
}

// BatchResult is the outcome for one batch item, keyed by its index.
type BatchResult struct {
	Value interface{}
	Err   error
}

// BatchExecute partitions items into chunks of batchSize, runs each chunk
// concurrently under ExecuteWithRateLimit and pauses ceil(window/maxRequests)
// between chunks to spread load evenly across the window.
func (l *RateLimiter) BatchExecute(ctx context.Context, items []interface{},
	call func(ctx context.Context, item interface{}) (interface{}, error),
	cfg model.RateLimitConfig, batchSize int) map[int]BatchResult {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	results := make(map[int]BatchResult, len(items))
	var mu sync.Mutex

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				value, err := l.ExecuteWithRateLimit(ctx, func(c context.Context) (interface{}, error) {
					out, callErr := call(c, items[idx])
					if callErr != nil {
						// Tag failures of the item's own call; limiter and
						// queue errors pass through unwrapped.
						return nil, &UpstreamError{Identifier: cfg.Identifier, Err: callErr}
					}
					return out, nil
				}, cfg, 0)
				mu.Lock()
				results[idx] = BatchResult{Value: value, Err: err}
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		if end < len(items) {
			pause := time.Duration((int64(cfg.Window) + int64(cfg.MaxRequests) - 1) / int64(cfg.MaxRequests))
			if err := sleepCtx(ctx, pause); err != nil {
				// Cancelled mid-batch: mark the rest as aborted.
				mu.Lock()
				for i := end; i < len(items); i++ {
					results[i] = BatchResult{Err: err}
				}
				mu.Unlock()
				return results
			}
		}
	}
	return results
}

// Degraded reports whether counting currently runs on the memory fallback.
func (l *RateLimiter) Degraded() bool { return l.store.Degraded() }

// Mode names the active counting strategy.
func (l *RateLimiter) Mode() string { return l.store.Mode() }

// capDuration bounds d to max, guarding against shift overflow.
func capDuration(d, max time.Duration) time.Duration {
	if d <= 0 || d > max {
		return max
	}
	return d
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
