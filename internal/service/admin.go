// Package service exposes the ops HTTP surface over the resilience core.
package service

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"FuseLane/internal/biz"
	"FuseLane/internal/data"
	"FuseLane/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// AdminService exposes breaker and limiter state for operators: inspection,
// manual overrides and a guarded synthetic probe.
type AdminService struct {
	registry *biz.BreakerRegistry
	store    *biz.FailoverWindowStore
	limiter  *biz.RateLimiter
	executor *biz.RetryExecutor
	data     *data.Data
	logger   *log.Helper

	probeClient *nethttp.Client
}

// NewAdminService creates the ops service.
func NewAdminService(registry *biz.BreakerRegistry, store *biz.FailoverWindowStore,
	limiter *biz.RateLimiter, executor *biz.RetryExecutor, d *data.Data, logger log.Logger) *AdminService {
	return &AdminService{
		registry: registry,
		store:    store,
		limiter:  limiter,
		executor: executor,
		data:     d,
		logger:   log.NewHelper(logger),
		probeClient: &nethttp.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RegisterRoutes attaches all admin endpoints to the HTTP server.
func (s *AdminService) RegisterRoutes(srv *http.Server) {
	root := srv.Route("/")
	root.GET("/healthz", s.Healthz)
	root.GET("/readyz", s.Readyz)

	r := srv.Route("/v1")
	r.GET("/breakers", s.ListBreakers)
	r.POST("/breakers/reset", s.ResetAllBreakers)
	r.POST("/breakers/{name}/reset", s.ResetBreaker)
	r.POST("/breakers/{name}/force-open", s.ForceOpenBreaker)
	r.GET("/ratelimit/health", s.RateLimitHealth)
	r.POST("/ratelimit/check", s.CheckRateLimit)
	r.POST("/probe", s.Probe)
}

// Healthz is the liveness endpoint.
func (s *AdminService) Healthz(ctx http.Context) error {
	return ctx.Result(200, map[string]string{"status": "ok"})
}

// Readyz reports backend connectivity. Degraded backends do not fail
// readiness: the service keeps serving on its fallbacks.
func (s *AdminService) Readyz(ctx http.Context) error {
	redisStatus := "not_configured"
	if rdb := s.data.GetRedisClient(); rdb != nil {
		redisStatus = "ok"
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			redisStatus = "unreachable"
		}
		cancel()
	}
	dbStatus := "not_configured"
	if s.data.GetDB() != nil {
		dbStatus = "ok"
	}
	return ctx.Result(200, map[string]interface{}{
		"status":     "ok",
		"redis":      redisStatus,
		"database":   dbStatus,
		"limit_mode": s.store.Mode(),
	})
}

// ListBreakers returns a metrics snapshot of every registered breaker.
func (s *AdminService) ListBreakers(ctx http.Context) error {
	metrics := s.registry.AllMetrics()
	s.logger.Debugw("msg", "ListBreakers called", "count", len(metrics))
	return ctx.Result(200, map[string]interface{}{
		"breakers": metrics,
		"count":    len(metrics),
	})
}

// ResetAllBreakers forces every breaker back to CLOSED.
func (s *AdminService) ResetAllBreakers(ctx http.Context) error {
	s.registry.ResetAll(ctx)
	return ctx.Result(200, map[string]string{"status": "reset"})
}

// ResetBreaker forces one breaker back to CLOSED. Unknown names are a 404:
// resetting a breaker that was never created would silently register it.
func (s *AdminService) ResetBreaker(ctx http.Context) error {
	name := ctx.Vars().Get("name")
	b, ok := s.lookupBreaker(name)
	if !ok {
		return kerrors.New(404, "BREAKER_NOT_FOUND", fmt.Sprintf("no circuit breaker named %s", name))
	}
	b.Reset(ctx)
	return ctx.Result(200, b.GetMetrics())
}

// ForceOpenBreaker trips one breaker manually, e.g. ahead of a downstream
// maintenance window.
func (s *AdminService) ForceOpenBreaker(ctx http.Context) error {
	name := ctx.Vars().Get("name")
	b, ok := s.lookupBreaker(name)
	if !ok {
		return kerrors.New(404, "BREAKER_NOT_FOUND", fmt.Sprintf("no circuit breaker named %s", name))
	}
	b.ForceOpen(ctx)
	return ctx.Result(200, b.GetMetrics())
}

// RateLimitHealth reports the active counting strategy.
func (s *AdminService) RateLimitHealth(ctx http.Context) error {
	return ctx.Result(200, map[string]interface{}{
		"mode":     s.store.Mode(),
		"degraded": s.store.Degraded(),
	})
}

// checkRequest is the body of POST /v1/ratelimit/check.
type checkRequest struct {
	Identifier  string `json:"identifier"`
	MaxRequests int    `json:"max_requests"`
	WindowMs    int64  `json:"window_ms"`
	BurstLimit  int    `json:"burst_limit"`
	QueueSize   int    `json:"queue_size"`
	Priority    int    `json:"priority"`
}

// checkResponse mirrors model.RateLimitResult with wire-friendly units.
type checkResponse struct {
	Allowed           bool   `json:"allowed"`
	RemainingRequests int    `json:"remaining_requests"`
	ResetTime         string `json:"reset_time"`
	RetryAfterMs      int64  `json:"retry_after_ms"`
	QueuePosition     int    `json:"queue_position"`
}

// CheckRateLimit counts one request against the submitted limit config and
// returns the decision. Note this consumes a window slot.
func (s *AdminService) CheckRateLimit(ctx http.Context) error {
	var req checkRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.New(400, "INVALID_BODY", err.Error())
	}
	cfg := model.RateLimitConfig{
		Identifier:  req.Identifier,
		MaxRequests: req.MaxRequests,
		Window:      time.Duration(req.WindowMs) * time.Millisecond,
		BurstLimit:  req.BurstLimit,
		QueueSize:   req.QueueSize,
		Priority:    req.Priority,
	}
	result, err := s.limiter.CheckRateLimit(ctx, cfg)
	if err != nil {
		return biz.TransportError(err)
	}
	return ctx.Result(200, checkResponse{
		Allowed:           result.Allowed,
		RemainingRequests: result.RemainingRequests,
		ResetTime:         result.ResetTime.Format(time.RFC3339Nano),
		RetryAfterMs:      result.RetryAfter.Milliseconds(),
		QueuePosition:     result.QueuePosition,
	})
}

// probeRequest is the body of POST /v1/probe.
type probeRequest struct {
	Identifier  string `json:"identifier"`
	URL         string `json:"url"`
	MaxRequests int    `json:"max_requests"`
	WindowMs    int64  `json:"window_ms"`
}

// Probe performs a synthetic HTTP GET against an upstream, guarded by the
// identifier's rate limit and circuit breaker. Operators use it to verify a
// dependency recovered before resetting its breaker.
func (s *AdminService) Probe(ctx http.Context) error {
	var req probeRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.New(400, "INVALID_BODY", err.Error())
	}
	if req.URL == "" {
		return kerrors.New(400, "INVALID_BODY", "url is required")
	}
	if req.Identifier == "" {
		req.Identifier = "external_api:probe"
	}
	if req.MaxRequests <= 0 {
		req.MaxRequests = 10
	}
	if req.WindowMs <= 0 {
		req.WindowMs = 60_000
	}
	cfg := model.RateLimitConfig{
		Identifier:  req.Identifier,
		MaxRequests: req.MaxRequests,
		Window:      time.Duration(req.WindowMs) * time.Millisecond,
	}

	start := time.Now()
	result, err := s.executor.Run(ctx, cfg, func(c context.Context) (interface{}, error) {
		return s.probeOnce(c, req.URL)
	}, nil)
	if err != nil {
		s.logger.Warnw("msg", "probe failed",
			"identifier", req.Identifier, "url", req.URL, "error", err.Error())
		return biz.TransportError(err)
	}
	return ctx.Result(200, map[string]interface{}{
		"identifier":  req.Identifier,
		"url":         req.URL,
		"status":      result,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// probeOnce issues the GET and maps non-2xx statuses to transport errors so
// the breaker and limiter see them as failures (429 included).
func (s *AdminService) probeOnce(ctx context.Context, url string) (int, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.probeClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return resp.StatusCode, kerrors.New(resp.StatusCode, "PROBE_UPSTREAM",
			fmt.Sprintf("probe returned status %d", resp.StatusCode))
	}
	return resp.StatusCode, nil
}

// lookupBreaker finds a registered breaker without creating one.
func (s *AdminService) lookupBreaker(name string) (*biz.CircuitBreaker, bool) {
	if _, ok := s.registry.AllMetrics()[name]; !ok {
		return nil, false
	}
	return s.registry.GetBreaker(name), true
}
