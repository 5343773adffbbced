package biz

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// ErrQueueStopped rejects waiters evicted by shutdown.
var ErrQueueStopped = errors.New("request queue stopped")

// queueEntry is one suspended request waiting for a window slot.
type queueEntry struct {
	id         string
	priority   int
	enqueuedAt time.Time
	seq        uint64
	// release delivers nil when the entry is drained and an error when it
	// is evicted. Buffered so the drainer never blocks on an abandoned
	// waiter.
	release chan error
}

// QueueTicket is the suspended-caller handle returned by Enqueue.
type QueueTicket struct {
	// Position is the 1-based queue slot at enqueue time.
	Position int
	entry    *queueEntry
}

// Wait suspends until the entry is drained (nil) or evicted (the eviction
// error). Context cancellation abandons the slot.
func (t *QueueTicket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-t.entry.release:
		return err
	}
}

// RequestQueue holds over-limit requests per identifier, ordered by
// priority descending then enqueue time ascending. A fixed periodic tick
// releases one entry per identifier, round-robin across identifiers.
type RequestQueue struct {
	mu     sync.Mutex
	queues map[string][]*queueEntry
	seq    uint64

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}

	clk     clock.Clock
	logger  *log.Helper
	metrics MetricsSink
}

// NewRequestQueue creates a stopped queue. Call Start to begin draining.
func NewRequestQueue(interval time.Duration, clk clock.Clock, metrics MetricsSink, logger log.Logger) *RequestQueue {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &RequestQueue{
		queues:   make(map[string][]*queueEntry),
		interval: interval,
		clk:      clk,
		logger:   log.NewHelper(logger),
		metrics:  metrics,
	}
}

// Start launches the drain ticker. Idempotent start is not supported; the
// lifecycle is Start once, Stop once.
func (q *RequestQueue) Start() {
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				q.drainTick()
			}
		}
	}()
	q.logger.Debugw("msg", "request queue drainer started", "type", "queue", "interval", q.interval)
}

// Stop halts the drainer and evicts every waiter so no caller stays
// suspended across shutdown.
func (q *RequestQueue) Stop() {
	if q.stop != nil {
		close(q.stop)
		<-q.done
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for identifier, entries := range q.queues {
		for _, e := range entries {
			e.release <- ErrQueueStopped
		}
		delete(q.queues, identifier)
		q.metrics.SetQueueDepth(identifier, 0)
	}
}

// Enqueue inserts a request into the identifier's queue. When the queue
// would exceed queueSize the entries sorted beyond capacity are evicted and
// their waiters rejected; previously queued higher-priority entries keep
// their order. Returns a QueueOverflowError when the new entry itself is
// evicted.
func (q *RequestQueue) Enqueue(identifier string, priority, queueSize int) (*QueueTicket, error) {
	if queueSize <= 0 {
		return nil, &QueueOverflowError{Identifier: identifier, QueueSize: queueSize}
	}

	q.mu.Lock()
	q.seq++
	entry := &queueEntry{
		id:         uuid.NewString(),
		priority:   priority,
		enqueuedAt: q.clk.Now(),
		seq:        q.seq,
		release:    make(chan error, 1),
	}

	entries := append(q.queues[identifier], entry)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})

	var evicted []*queueEntry
	if len(entries) > queueSize {
		evicted = entries[queueSize:]
		entries = entries[:queueSize]
	}
	q.queues[identifier] = entries
	q.metrics.SetQueueDepth(identifier, len(entries))

	position := 0
	rejected := false
	for i, e := range entries {
		if e == entry {
			position = i + 1
		}
	}
	for _, e := range evicted {
		if e == entry {
			rejected = true
		}
		e.release <- &QueueOverflowError{Identifier: identifier, QueueSize: queueSize}
	}
	q.mu.Unlock()

	if len(evicted) > 0 {
		q.logger.Warnw("msg", "queue overflow, evicted waiters",
			"type", "queue",
			"identifier", identifier,
			"evicted", len(evicted),
			"queue_size", queueSize)
	}
	if rejected {
		return nil, &QueueOverflowError{Identifier: identifier, QueueSize: queueSize}
	}
	return &QueueTicket{Position: position, entry: entry}, nil
}

// Len returns the current depth of one identifier's queue.
func (q *RequestQueue) Len(identifier string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[identifier])
}

// drainTick releases the head entry of every identifier's queue. Sorted key
// iteration keeps the rotation fair across identifiers.
func (q *RequestQueue) drainTick() {
	q.mu.Lock()
	identifiers := make([]string, 0, len(q.queues))
	for id := range q.queues {
		identifiers = append(identifiers, id)
	}
	sort.Strings(identifiers)

	for _, id := range identifiers {
		entries := q.queues[id]
		if len(entries) == 0 {
			delete(q.queues, id)
			continue
		}
		head := entries[0]
		q.queues[id] = entries[1:]
		if len(q.queues[id]) == 0 {
			delete(q.queues, id)
		}
		head.release <- nil
		q.metrics.SetQueueDepth(id, len(q.queues[id]))
	}
	q.mu.Unlock()
}
