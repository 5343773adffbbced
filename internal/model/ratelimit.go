// Package model holds the domain value types shared between the biz and
// data layers.
package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RateLimitConfig describes one sliding-window limit. Identifier is a
// "<category>:<resource>" key, e.g. "yodlee:sync-user123".
type RateLimitConfig struct {
	Identifier  string
	MaxRequests int
	Window      time.Duration
	// BurstLimit, when above MaxRequests, is the hard cap a short burst may
	// reach inside a single window. Zero means no burst headroom.
	BurstLimit int
	// QueueSize enables the bounded priority queue for over-limit requests.
	// Zero disables queuing (over-limit requests are rejected).
	QueueSize int
	// Priority orders queued requests, higher first. Zero is the default tier.
	Priority int
}

// Validate checks the limit config before it is enforced.
func (c RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Identifier, validation.Required),
		validation.Field(&c.MaxRequests, validation.Required, validation.Min(1)),
		validation.Field(&c.Window, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.QueueSize, validation.Min(0)),
		validation.Field(&c.BurstLimit, validation.Min(0)),
	)
}

// EffectiveLimit is the cap compared against the window count. BurstLimit
// wins when it grants headroom beyond MaxRequests.
func (c RateLimitConfig) EffectiveLimit() int {
	if c.BurstLimit > c.MaxRequests {
		return c.BurstLimit
	}
	return c.MaxRequests
}

// Category returns the identifier prefix before the first colon. Breaker
// defaults are selected by matching against this.
func (c RateLimitConfig) Category() string {
	if i := strings.Index(c.Identifier, ":"); i > 0 {
		return c.Identifier[:i]
	}
	return c.Identifier
}

// RateLimitResult is the decision for one checked request.
type RateLimitResult struct {
	Allowed           bool          `json:"allowed"`
	RemainingRequests int           `json:"remaining_requests"`
	ResetTime         time.Time     `json:"reset_time"`
	// RetryAfter hints when a rejected caller should try again. Zero when
	// the request was allowed.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// QueuePosition is the 1-based slot in the wait queue, zero when the
	// request was not queued.
	QueuePosition int `json:"queue_position,omitempty"`
}
