// Package metrics exposes the process-wide Prometheus collectors that are not
// driven by progress events: HTTP serving, pacing delays, in-flight tasks and
// result writes.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	tasksInFlight              prometheus.Gauge
	resultWritesTotal          *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// repeatedly.
func Init() {
	once.Do(func() {
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roster_rate_limit_delay_seconds",
				Help:    "Time entity fetches spent waiting on the per-host pacer.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		tasksInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "roster_tasks_in_flight",
				Help: "Entity fetch and extract tasks currently holding a concurrency slot.",
			},
		)

		resultWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roster_result_writes_total",
				Help: "Result set writes by destination and result.",
			},
			[]string{"destination", "result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch to rawURL waited on the pacer.
func ObserveRateLimitDelay(rawURL string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(crawler.SiteLabel(rawURL)).Observe(duration.Seconds())
}

// IncTasksInFlight marks a task as holding a slot.
func IncTasksInFlight() {
	if tasksInFlight != nil {
		tasksInFlight.Inc()
	}
}

// DecTasksInFlight releases a task slot.
func DecTasksInFlight() {
	if tasksInFlight != nil {
		tasksInFlight.Dec()
	}
}

// ObserveResultWrite counts a write of the result set to destination.
func ObserveResultWrite(destination string, err error) {
	if resultWritesTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	resultWritesTotal.WithLabelValues(destination, result).Inc()
}
