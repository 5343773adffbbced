package data

import (
	"context"
	"sync"
	"time"

	"FuseLane/internal/conf"
	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxTrackedIdentifiers = 4096

// windowEntry is one identifier's in-process counting window.
type windowEntry struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// MemoryWindowStore implements biz.WindowStore in process memory. It is the
// fallback when the coordination store is unavailable: counting degrades from
// a cluster-wide sliding window to a per-instance fixed window, trading
// accuracy for availability. The LRU bound keeps a hostile spread of
// identifiers from growing the map without limit.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *windowEntry]
	clk     clock.Clock
	logger  *log.Helper
}

// NewMemoryWindowStore creates the in-memory fallback store sized from
// configuration.
func NewMemoryWindowStore(rc *conf.Resilience, clk clock.Clock, logger log.Logger) (*MemoryWindowStore, error) {
	size := defaultMaxTrackedIdentifiers
	if rc != nil && rc.RateLimit != nil && rc.RateLimit.MaxTrackedIdentifiers > 0 {
		size = rc.RateLimit.MaxTrackedIdentifiers
	}
	entries, err := lru.New[string, *windowEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryWindowStore{
		entries: entries,
		clk:     clk,
		logger:  log.NewHelper(logger),
	}, nil
}

// CheckAndIncrement implements biz.WindowStore. Never returns an error: the
// fallback must stay up when everything else is down.
func (s *MemoryWindowStore) CheckAndIncrement(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	entry, ok := s.entries.Get(key)
	if !ok || now.Sub(entry.windowStart) >= window || entry.window != window {
		entry = &windowEntry{windowStart: now, window: window}
		s.entries.Add(key, entry)
	}
	entry.count++
	ttl := window - now.Sub(entry.windowStart)
	return entry.count, ttl, nil
}

// Reset implements biz.WindowStore.
func (s *MemoryWindowStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Remove(key)
	return nil
}

// Cleanup drops windows that have fully elapsed. Run periodically by the
// maintenance cron; the LRU already bounds memory, this just keeps stale
// identifiers from occupying slots.
func (s *MemoryWindowStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	removed := 0
	for _, key := range s.entries.Keys() {
		if entry, ok := s.entries.Peek(key); ok && now.Sub(entry.windowStart) >= entry.window {
			s.entries.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debugw("msg", "swept expired windows", "type", "queue", "removed", removed)
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}
