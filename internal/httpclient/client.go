// Package httpclient implements the rate-limited retrying HTTP client shared
// by every request of a source session.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/job-harvester/internal/clock/system"
	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/metrics"
	"github.com/JakeFAU/job-harvester/internal/policy/ratelimit"
)

// DefaultSkipStatuses are answered with a Skip result instead of an error.
var DefaultSkipStatuses = []int{
	http.StatusMovedPermanently,
	http.StatusFound,
	http.StatusSeeOther,
	http.StatusTemporaryRedirect,
	http.StatusPermanentRedirect,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config tunes a Client.
type Config struct {
	Concurrency       int
	MaxAttempts       int
	BackoffBase       time.Duration
	Timeout           time.Duration
	UserAgent         string
	SkipStatuses      []int
	RequestsPerSecond float64
	Burst             int
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the per-client transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// WithLabel sets the platform label used in logs and metrics.
func WithLabel(label string) Option {
	return func(c *Client) {
		c.label = label
	}
}

// Client bounds concurrent requests with a semaphore, soft-skips gone
// resources, and retries transient transport faults with exponential backoff.
// Each Client owns its transport and must be closed.
type Client struct {
	http     *http.Client
	gate     *semaphore.Weighted
	retry    RetryPolicy
	skip     map[int]struct{}
	defaults http.Header
	pacer    *ratelimit.Limiter
	sleep    Sleeper
	label    string
	logger   *zap.Logger
}

// New builds a Client with its own connection pool.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.SkipStatuses == nil {
		cfg.SkipStatuses = DefaultSkipStatuses
	}
	skip := make(map[int]struct{}, len(cfg.SkipStatuses))
	for _, code := range cfg.SkipStatuses {
		skip[code] = struct{}{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.Concurrency

	c := &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		gate:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		retry:    NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase),
		skip:     skip,
		defaults: http.Header{"User-Agent": []string{cfg.UserAgent}},
		sleep:    system.Clock{}.Sleep,
		label:    "default",
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.pacer = ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RequestsPerSecond, DefaultBurst: cfg.Burst})
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("platform", c.label))
	return c
}

// Do executes req. A nil error means the result is either OK or Skip; any
// failure is a *FatalError.
func (c *Client) Do(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	attempt := 1
	for ; ; attempt++ {
		res, err := c.attempt(ctx, req)
		if err == nil {
			c.observe(res.Kind().String())
			if skip, ok := res.Skip(); ok {
				c.logger.Info("request skipped",
					zap.String("url", req.URL),
					zap.String("reason", skip.Reason()),
				)
			}
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || !c.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := c.retry.Backoff(attempt)
		metrics.ObserveRetry(c.label, wait)
		c.logger.Warn("transient request failure, retrying",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retry.MaxAttempts()),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	c.observe("fatal")
	c.logger.Error("request failed",
		zap.String("url", req.URL),
		zap.Int("attempts", attempt),
		zap.Error(lastErr),
	)
	return Result{}, &FatalError{URL: req.URL, Attempts: attempt, Err: lastErr}
}

// Fetch is Do for callers that only care about a body: skips become errors
// wrapping crawler.ErrSkipped.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if skip, ok := res.Skip(); ok {
		return nil, fmt.Errorf("%s %s: %w", req.URL, skip.Reason(), crawler.ErrSkipped)
	}
	resp, _ := res.Response()
	return resp, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// attempt holds an admission slot for exactly one round trip, including the
// body read. The slot is free again before any backoff sleep.
func (c *Client) attempt(ctx context.Context, req Request) (Result, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("acquire request slot: %w", err)
	}
	metrics.AddInFlight(c.label, 1)
	defer func() {
		metrics.AddInFlight(c.label, -1)
		c.gate.Release(1)
	}()

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, req.URL); err != nil {
			return Result{}, err
		}
	}

	httpReq, err := req.build(ctx, c.defaults)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if _, ok := c.skip[resp.StatusCode]; ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Skipped(Skip{
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}), nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}
	return OK(&Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        httpReq.URL.String(),
	}), nil
}

func (c *Client) observe(outcome string) {
	metrics.ObserveClientRequest(c.label, outcome)
}
