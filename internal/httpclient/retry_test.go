package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(0, 0)
	assert.Equal(t, 5, p.MaxAttempts())
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 16*time.Second, p.Backoff(4))

	fast := NewRetryPolicy(3, time.Millisecond)
	assert.Equal(t, 4*time.Millisecond, fast.Backoff(2))
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Second)
	assert.True(t, p.ShouldRetry(io.ErrUnexpectedEOF, 1))
	assert.True(t, p.ShouldRetry(io.ErrUnexpectedEOF, 2))
	assert.False(t, p.ShouldRetry(io.ErrUnexpectedEOF, 3))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", fmt.Errorf("send: %w", timeoutErr{}), true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broken pipe", syscall.EPIPE, true},
		{"eof", fmt.Errorf("send request: %w", io.EOF), true},
		{"malformed", errors.New("net/http: malformed HTTP response \"x\""), true},
		{"canceled", fmt.Errorf("send: %w", context.Canceled), false},
		{"status", &StatusError{URL: "u", StatusCode: 500}, false},
		{"dns", errors.New("no such host"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
