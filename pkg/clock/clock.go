// Package clock abstracts wall-clock access so window expiry and breaker
// timeouts can be simulated deterministically in tests.
package clock

import "time"

// Clock supplies the current time. Production code uses SystemClock; tests
// inject a Fake to step through windows without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// New returns the process-wide system clock.
func New() Clock {
	return SystemClock{}
}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}
