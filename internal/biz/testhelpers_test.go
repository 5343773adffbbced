package biz

import (
	"context"
	"os"
	"sync"
	"time"

	"FuseLane/internal/model"
	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
)

func testLogger() log.Logger {
	return log.NewStdLogger(os.Stdout)
}

// nopMetrics discards all metrics.
type nopMetrics struct{}

func (nopMetrics) IncrBreakerEvent(string, string)                 {}
func (nopMetrics) IncrLimiterDecision(string, string)              {}
func (nopMetrics) ObserveCallDuration(string, time.Duration, bool) {}
func (nopMetrics) SetQueueDepth(string, int)                       {}
func (nopMetrics) SetDegraded(bool)                                {}

// recordingAudit captures transitions for assertions.
type recordingAudit struct {
	mu          sync.Mutex
	transitions []string
	reasons     []string
	resets      []string
}

func (a *recordingAudit) LogTransition(_ context.Context, name string, from, to model.BreakerState, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, name+":"+string(from)+"->"+string(to))
	a.reasons = append(a.reasons, reason)
}

func (a *recordingAudit) LogReset(_ context.Context, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets = append(a.resets, name)
}

// recordingNotifier captures lifecycle events.
type recordingNotifier struct {
	mu     sync.Mutex
	opened []*model.CircuitOpenedEvent
	closed []*model.CircuitClosedEvent
}

func (n *recordingNotifier) NotifyCircuitOpened(_ context.Context, e *model.CircuitOpenedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, e)
	return nil
}

func (n *recordingNotifier) NotifyCircuitClosed(_ context.Context, e *model.CircuitClosedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, e)
	return nil
}

func (n *recordingNotifier) openedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.opened)
}

func (n *recordingNotifier) closedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.closed)
}

// fakeWindowStore is an in-test WindowStore with a switchable error.
type fakeWindowStore struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
	calls  int
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{counts: make(map[string]int)}
}

func (s *fakeWindowStore) CheckAndIncrement(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, 0, s.err
	}
	s.counts[key]++
	return s.counts[key], window, nil
}

func (s *fakeWindowStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return nil
}

func (s *fakeWindowStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeWindowStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeProber answers Ping with a switchable error.
type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (p *fakeProber) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func newTestBreaker(cfg model.BreakerConfig, clk clock.Clock) (*CircuitBreaker, *recordingNotifier, *recordingAudit) {
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	b := NewCircuitBreaker("external_api:test", cfg, clk, testLogger(), nopMetrics{}, audit, notifier)
	return b, notifier, audit
}
