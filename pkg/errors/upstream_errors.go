// Package errors provides upstream error classification and handling utilities.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// UpstreamErrorType represents the type of upstream call error.
type UpstreamErrorType int

const (
	// ErrorTypeUnknown represents an unclassified upstream error.
	ErrorTypeUnknown UpstreamErrorType = iota
	// ErrorTypeRateLimited represents a 429-equivalent signal: the upstream
	// service itself is throttling us.
	ErrorTypeRateLimited
	// ErrorTypeTimeout represents a deadline or network timeout.
	ErrorTypeTimeout
	// ErrorTypeUnavailable represents a 5xx or connection-level failure.
	ErrorTypeUnavailable
)

// UpstreamError wraps an upstream call error with classification information.
type UpstreamError struct {
	Type        UpstreamErrorType
	OriginalErr error
	Message     string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *UpstreamError) Unwrap() error {
	return e.OriginalErr
}

// rateLimitSignatures are message fragments providers use for throttling
// responses. Matched case-insensitively.
var rateLimitSignatures = []string{
	"429",
	"rate limit",
	"rate-limit",
	"too many requests",
	"quota exceeded",
	"throttl",
}

// unavailableSignatures are message fragments for transient outages.
var unavailableSignatures = []string{
	"502",
	"503",
	"504",
	"connection refused",
	"connection reset",
	"service unavailable",
	"bad gateway",
	"broken pipe",
}

// Classify classifies an upstream error into a specific error type.
//
// It handles Kratos transport errors, net errors and provider message
// signatures:
//   - kratos code 429 or a throttling signature → ErrorTypeRateLimited
//   - context deadline / net timeout → ErrorTypeTimeout
//   - kratos 5xx or connection failures → ErrorTypeUnavailable
func Classify(err error) *UpstreamError {
	if err == nil {
		return nil
	}

	if ke := new(kerrors.Error); errors.As(err, &ke) {
		switch {
		case ke.Code == 429:
			return &UpstreamError{Type: ErrorTypeRateLimited, OriginalErr: err, Message: "upstream rate limited"}
		case ke.Code >= 500:
			return &UpstreamError{Type: ErrorTypeUnavailable, OriginalErr: err, Message: "upstream unavailable"}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Type: ErrorTypeTimeout, OriginalErr: err, Message: "upstream timeout"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamError{Type: ErrorTypeTimeout, OriginalErr: err, Message: "upstream timeout"}
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return &UpstreamError{Type: ErrorTypeRateLimited, OriginalErr: err, Message: "upstream rate limited"}
		}
	}
	for _, sig := range unavailableSignatures {
		if strings.Contains(msg, sig) {
			return &UpstreamError{Type: ErrorTypeUnavailable, OriginalErr: err, Message: "upstream unavailable"}
		}
	}

	return &UpstreamError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "upstream error"}
}

// IsRateLimited reports whether err carries a 429-equivalent signal.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Type == ErrorTypeRateLimited
}

// IsRetryable reports whether err is worth retrying at all: throttling,
// timeouts and transient unavailability qualify, everything else does not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err).Type {
	case ErrorTypeRateLimited, ErrorTypeTimeout, ErrorTypeUnavailable:
		return true
	default:
		return false
	}
}
