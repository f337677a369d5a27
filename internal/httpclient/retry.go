package httpclient

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryPolicy decides which transport faults are retried and how long to
// wait between attempts.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryPolicy builds a policy. Waits grow as base*2^attempt, so the
// default 1s base yields 2s, 4s, 8s, 16s.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return RetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts returns the total attempt budget, including the first try.
func (p RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before the attempt following attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return time.Duration(float64(p.baseDelay) * math.Pow(2, float64(attempt)))
}

// IsTransient classifies connect/read timeouts and broken connections as
// retryable. Cancellation and status errors are not. Expiry of the caller's
// own context is checked by Client.Do, since client timeouts also match
// context.DeadlineExceeded.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var transientMarkers = []string{
	"malformed HTTP",
	"connection reset by peer",
	"transport connection broken",
	"server closed idle connection",
	"unexpected EOF",
}
