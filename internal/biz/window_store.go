package biz

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// WindowStore counts requests per identifier inside a sliding time window.
// Following Kratos v2 DDD architecture, the interface lives in the biz layer
// and the data layer provides the Redis and in-memory implementations.
type WindowStore interface {
	// CheckAndIncrement atomically prunes entries older than the window,
	// records the current request and returns the count after increment
	// together with the time left until the window resets.
	CheckAndIncrement(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)

	// Reset drops all recorded requests for key.
	Reset(ctx context.Context, key string) error
}

// LivenessProber checks whether the distributed backend is reachable.
type LivenessProber interface {
	Ping(ctx context.Context) error
}

// FailoverWindowStore routes counting to the distributed store and fails
// over to the local in-memory store when the backend errors. Recovery is
// detected by the periodic liveness probe, not per-request retries, so a
// flapping backend cannot double-count a single request across stores.
type FailoverWindowStore struct {
	remote WindowStore
	local  WindowStore
	prober LivenessProber

	degraded atomic.Bool
	logger   *log.Helper
	metrics  MetricsSink
}

// NewFailoverWindowStore wires the two store strategies. remote and prober
// may be backed by a nil Redis client; every call then fails over locally
// until the probe succeeds.
func NewFailoverWindowStore(remote, local WindowStore, prober LivenessProber,
	metrics MetricsSink, logger log.Logger) *FailoverWindowStore {
	return &FailoverWindowStore{
		remote:  remote,
		local:   local,
		prober:  prober,
		logger:  log.NewHelper(logger),
		metrics: metrics,
	}
}

// CheckAndIncrement implements WindowStore.
func (s *FailoverWindowStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if s.remote != nil && !s.degraded.Load() {
		count, ttl, err := s.remote.CheckAndIncrement(ctx, key, window)
		if err == nil {
			return count, ttl, nil
		}
		s.markDegraded(&BackendUnavailableError{Op: "check_and_increment", Err: err})
	}
	return s.local.CheckAndIncrement(ctx, key, window)
}

// Reset implements WindowStore. Both stores are cleared so a recovery does
// not resurrect stale counts.
func (s *FailoverWindowStore) Reset(ctx context.Context, key string) error {
	if s.remote != nil && !s.degraded.Load() {
		if err := s.remote.Reset(ctx, key); err != nil {
			s.markDegraded(&BackendUnavailableError{Op: "reset", Err: err})
		}
	}
	return s.local.Reset(ctx, key)
}

// Probe pings the backend and flips the health flag in both directions.
// Called on a fixed schedule by the maintenance cron.
func (s *FailoverWindowStore) Probe(ctx context.Context) {
	if s.prober == nil {
		return
	}
	err := s.prober.Ping(ctx)
	wasDegraded := s.degraded.Load()
	switch {
	case err != nil && !wasDegraded:
		s.markDegraded(&BackendUnavailableError{Op: "probe", Err: err})
	case err == nil && wasDegraded:
		s.degraded.Store(false)
		s.metrics.SetDegraded(false)
		s.logger.Infow("msg", "coordination backend recovered, resuming distributed counting",
			"type", "redis")
	}
}

// markDegraded flips to the memory fallback. The failure is absorbed here:
// callers never see a backend error.
func (s *FailoverWindowStore) markDegraded(cause error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.metrics.SetDegraded(true)
		s.logger.Warnw("msg", "coordination backend unavailable, falling back to in-memory window",
			"type", "degraded",
			"error", cause.Error())
	}
}

// Degraded reports whether counting currently runs on the memory fallback.
func (s *FailoverWindowStore) Degraded() bool {
	return s.degraded.Load()
}

// Mode names the active counting strategy for the ops surface.
func (s *FailoverWindowStore) Mode() string {
	if s.remote == nil || s.degraded.Load() {
		return "memory"
	}
	return "distributed"
}
