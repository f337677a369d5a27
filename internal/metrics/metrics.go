// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	clientRequestsTotal           *prometheus.CounterVec
	clientRetriesTotal            *prometheus.CounterVec
	clientBackoffSeconds          *prometheus.HistogramVec
	clientInFlight                *prometheus.GaugeVec
	freshnessVerdictsTotal        *prometheus.CounterVec
	itemsTotal                    *prometheus.CounterVec
	sinkWritesTotal               *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		clientRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_client_requests_total",
				Help: "Outbound requests by platform and outcome (ok, skip, fatal).",
			},
			[]string{"platform", "outcome"},
		)

		clientRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_client_retries_total",
				Help: "Outbound request retries after transient faults.",
			},
			[]string{"platform"},
		)

		clientBackoffSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_client_backoff_seconds",
				Help:    "Backoff waits before retrying a request.",
				Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"platform"},
		)

		clientInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_client_in_flight",
				Help: "Requests currently holding an admission slot.",
			},
			[]string{"platform"},
		)

		freshnessVerdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_freshness_verdicts_total",
				Help: "Freshness decisions by entity and verdict.",
			},
			[]string{"platform", "entity", "verdict"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_items_total",
				Help: "Detail fetches by platform and result (fetched, dropped).",
			},
			[]string{"platform", "result"},
		)

		sinkWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_sink_writes_total",
				Help: "Per-item sink outcomes.",
			},
			[]string{"platform", "sink", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveClientRequest counts one finished outbound request.
func ObserveClientRequest(platform, outcome string) {
	Init()
	clientRequestsTotal.WithLabelValues(platform, outcome).Inc()
}

// ObserveRetry records a retry and the wait that precedes it.
func ObserveRetry(platform string, wait time.Duration) {
	Init()
	clientRetriesTotal.WithLabelValues(platform).Inc()
	clientBackoffSeconds.WithLabelValues(platform).Observe(wait.Seconds())
}

// AddInFlight adjusts the admission gauge.
func AddInFlight(platform string, delta float64) {
	Init()
	clientInFlight.WithLabelValues(platform).Add(delta)
}

// ObserveVerdict counts a freshness decision.
func ObserveVerdict(platform, entity, verdict string) {
	Init()
	freshnessVerdictsTotal.WithLabelValues(platform, entity, verdict).Inc()
}

// ObserveItem counts a detail fetch result.
func ObserveItem(platform, result string) {
	Init()
	itemsTotal.WithLabelValues(platform, result).Inc()
}

// ObserveSinkWrite counts one item outcome on a sink.
func ObserveSinkWrite(platform, sink, outcome string) {
	Init()
	sinkWritesTotal.WithLabelValues(platform, sink, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
