// Package metrics exposes Prometheus collectors for the research agent.
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
	agentFetchesTotal            *prometheus.CounterVec
	agentFetchBytesTotal         *prometheus.CounterVec
	agentAnalysesTotal           *prometheus.CounterVec
	agentHeadlessPromotionsTotal prometheus.Counter
	agentCacheLookupsTotal       *prometheus.CounterVec
	agentBreakerOpensTotal       *prometheus.CounterVec
	agentRateLimitDelaysSeconds  *prometheus.HistogramVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		agentFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_fetches_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		agentFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		agentAnalysesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_analyses_total",
				Help: "Total number of analyses performed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		agentHeadlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_headless_promotions_total",
				Help: "Total number of fetches promoted to the headless browser.",
			},
		)

		agentCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_cache_lookups_total",
				Help: "Total cache lookups, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)

		agentBreakerOpensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_breaker_opens_total",
				Help: "Total circuit breaker transitions to open, labeled by host.",
			},
			[]string{"host"},
		)

		agentRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// ObserveFetch increments the fetch metrics.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	agentFetchesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		agentFetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveAnalysis increments the analysis counter for the given outcome.
func ObserveAnalysis(outcome string) {
	agentAnalysesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHeadlessPromotion increments the headless promotion counter.
func ObserveHeadlessPromotion() {
	agentHeadlessPromotionsTotal.Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	agentCacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveBreakerOpen records a circuit breaker opening for a host.
func ObserveBreakerOpen(host string) {
	agentBreakerOpensTotal.WithLabelValues(SanitizeSite(host)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	agentRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
