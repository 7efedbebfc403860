// Package metrics exposes Prometheus collectors for the spider service.
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
	poolTasksTotal                *prometheus.CounterVec
	poolActiveWorkers             *prometheus.GaugeVec
	poolQueueDepth                *prometheus.GaugeVec
	timerRunsTotal                *prometheus.CounterVec
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; observers call it lazily.
func Init() {
	once.Do(func() {
		poolTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_pool_tasks_total",
				Help: "Total number of tasks executed by a pool, labeled by pool and outcome.",
			},
			[]string{"pool", "outcome"},
		)

		poolActiveWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spider_pool_active_workers",
				Help: "Number of workers currently executing a task.",
			},
			[]string{"pool"},
		)

		poolQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spider_pool_queue_depth",
				Help: "Number of tasks waiting in a pool queue.",
			},
			[]string{"pool"},
		)

		timerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_timer_runs_total",
				Help: "Total number of timer handler invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_bytes_total",
				Help: "Total number of bytes reported by fetched pages, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spider_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spider_http_request_duration_seconds",
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

// StatusClass groups HTTP status codes (2xx, 3xx, ...).
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveTask increments the task counter for a pool.
func ObserveTask(pool, outcome string) {
	Init()
	poolTasksTotal.WithLabelValues(pool, outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers(pool string) {
	Init()
	poolActiveWorkers.WithLabelValues(pool).Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers(pool string) {
	Init()
	poolActiveWorkers.WithLabelValues(pool).Dec()
}

// SetQueueDepth records the current queue length for a pool.
func SetQueueDepth(pool string, depth int) {
	Init()
	poolQueueDepth.WithLabelValues(pool).Set(float64(depth))
}

// ObserveTimerRun increments the timer counter.
func ObserveTimerRun(outcome string) {
	Init()
	timerRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCrawl increments the crawler metrics.
func ObserveCrawl(site string, status string, bytesFetched int64) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
