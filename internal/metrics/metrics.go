// Package metrics exposes Prometheus collectors for the scrape gateway.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scrapeRunsTotal            *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	scrapeHTMLBytes            *prometheus.HistogramVec
	browsersActive             prometheus.Gauge
	browserLaunchFailuresTotal prometheus.Counter
	sinkFailuresTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every helper calls it lazily.
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"method", "route"},
		)

		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_scrape_runs_total",
				Help: "Total number of scrape routine runs, labeled by routine and status.",
			},
			[]string{"routine", "status"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_scrape_duration_seconds",
				Help:    "Histogram of end-to-end scrape durations including browser start-up.",
				Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60},
			},
			[]string{"routine"},
		)

		scrapeHTMLBytes = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_scrape_html_length",
				Help:    "Histogram of captured document lengths, labeled by routine.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"routine"},
		)

		browsersActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_browsers_active",
				Help: "Number of browser processes currently running.",
			},
		)

		browserLaunchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_browser_launch_failures_total",
				Help: "Total number of browser processes that failed to start.",
			},
		)

		sinkFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_sink_failures_total",
				Help: "Total number of failed run sink writes, labeled by sink.",
			},
			[]string{"sink"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// SanitizeRoutine lowercases a routine name and maps blanks to "unknown".
func SanitizeRoutine(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return name
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveScrape records one routine run and, on success, the captured document length.
func ObserveScrape(routine, status string, htmlLength int, duration time.Duration) {
	Init()
	routine = SanitizeRoutine(routine)
	scrapeRunsTotal.WithLabelValues(routine, status).Inc()
	scrapeDurationSeconds.WithLabelValues(routine).Observe(duration.Seconds())
	if htmlLength > 0 {
		scrapeHTMLBytes.WithLabelValues(routine).Observe(float64(htmlLength))
	}
}

// IncActiveBrowsers increments the live browser gauge.
func IncActiveBrowsers() {
	Init()
	browsersActive.Inc()
}

// DecActiveBrowsers decrements the live browser gauge.
func DecActiveBrowsers() {
	Init()
	browsersActive.Dec()
}

// ObserveBrowserLaunchFailure counts a browser that never became usable.
func ObserveBrowserLaunchFailure() {
	Init()
	browserLaunchFailuresTotal.Inc()
}

// ObserveSinkFailure counts a failed archive, notify or ledger write.
func ObserveSinkFailure(sink string) {
	Init()
	sinkFailuresTotal.WithLabelValues(sink).Inc()
}
