package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"FuseLane/internal/model"
	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
)

// categoryDefaults maps dependency categories to their breaker tuning.
// Matched by substring against the breaker name, first match wins. These
// values are operationally calibrated per dependency class; keep them in
// sync with the runbook.
var categoryDefaults = []struct {
	category string
	cfg      model.BreakerConfig
}{
	{"database", model.BreakerConfig{FailureThreshold: 5, SuccessThreshold: 3, OpenTimeout: 30 * time.Second, MonitoringPeriod: 60 * time.Second}},
	{"external_api", model.BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 60 * time.Second, MonitoringPeriod: 120 * time.Second}},
	{"yodlee", model.BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 120 * time.Second, MonitoringPeriod: 300 * time.Second}},
	{"email", model.BreakerConfig{FailureThreshold: 5, SuccessThreshold: 3, OpenTimeout: 60 * time.Second, MonitoringPeriod: 300 * time.Second}},
	{"redis", model.BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 30 * time.Second, MonitoringPeriod: 60 * time.Second}},
	{"payment", model.BreakerConfig{FailureThreshold: 2, SuccessThreshold: 3, OpenTimeout: 300 * time.Second, MonitoringPeriod: 600 * time.Second}},
}

// genericDefault covers names matching no known category.
var genericDefault = model.BreakerConfig{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	OpenTimeout:      60 * time.Second,
	MonitoringPeriod: 120 * time.Second,
}

// BreakerRegistry creates and looks up circuit breakers by dependency name,
// applying category defaults. Breakers are created lazily and live for the
// process lifetime unless removed.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	clk      clock.Clock
	logger   log.Logger
	helper   *log.Helper
	metrics  MetricsSink
	audit    AuditLogger
	notifier EventNotifier
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(logger log.Logger, clk clock.Clock, metrics MetricsSink,
	audit AuditLogger, notifier EventNotifier) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		clk:      clk,
		logger:   logger,
		helper:   log.NewHelper(logger),
		metrics:  metrics,
		audit:    audit,
		notifier: notifier,
	}
}

// GetBreaker returns the breaker for name, creating it with the category
// default config on first use.
func (r *BreakerRegistry) GetBreaker(name string) *CircuitBreaker {
	b, _ := r.GetBreakerWithConfig(name, nil)
	return b
}

// GetBreakerWithConfig returns the breaker for name. When the breaker does
// not exist yet and cfg is non-nil, it is created with cfg; a nil cfg
// selects the category default. An existing breaker keeps its original
// config.
func (r *BreakerRegistry) GetBreakerWithConfig(name string, cfg *model.BreakerConfig) (*CircuitBreaker, error) {
	r.mu.RLock()
	if b, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return b, nil
	}
	r.mu.RUnlock()

	resolved := DefaultConfigFor(name)
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid breaker config for %s: %w", name, err)
		}
		resolved = *cfg
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		// Lost the creation race, keep the winner.
		return b, nil
	}
	b := NewCircuitBreaker(name, resolved, r.clk, r.logger, r.metrics, r.audit, r.notifier)
	r.breakers[name] = b
	r.helper.Debugw("msg", "circuit breaker created",
		"type", "circuit",
		"breaker", name,
		"failure_threshold", resolved.FailureThreshold,
		"open_timeout", resolved.OpenTimeout)
	return b, nil
}

// DefaultConfigFor selects the category default config by substring match,
// falling back to the generic config.
func DefaultConfigFor(name string) model.BreakerConfig {
	for _, d := range categoryDefaults {
		if strings.Contains(name, d.category) {
			return d.cfg
		}
	}
	return genericDefault
}

// AllMetrics snapshots every registered breaker, keyed by name.
func (r *BreakerRegistry) AllMetrics() map[string]*model.BreakerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*model.BreakerMetrics, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.GetMetrics()
	}
	return out
}

// ResetAll forces every breaker back to CLOSED.
func (r *BreakerRegistry) ResetAll(ctx context.Context) {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	for _, b := range breakers {
		b.Reset(ctx)
	}
	r.helper.Infow("msg", "all circuit breakers reset", "type", "circuit", "count", len(breakers))
}

// RemoveBreaker drops the breaker for name. The next GetBreaker recreates
// it from defaults.
func (r *BreakerRegistry) RemoveBreaker(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.breakers[name]; !ok {
		return false
	}
	delete(r.breakers, name)
	return true
}
