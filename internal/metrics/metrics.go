// Package metrics exposes Prometheus collectors for the knowledge engine.
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
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerJobsTotal           *prometheus.CounterVec
	crawlerActiveWorkers       prometheus.Gauge
	chunksUpsertedTotal        prometheus.Counter
	vectorQueriesTotal         *prometheus.CounterVec
	chatTurnsTotal             *prometheus.CounterVec
	answerFallbacksTotal       prometheus.Counter
	sessionDegradedTotal       *prometheus.CounterVec
	inquiriesEmittedTotal      prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_crawler_jobs_total",
				Help: "Total number of crawl jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_crawler_active_workers",
				Help: "Number of crawler workers currently processing a page.",
			},
		)

		chunksUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_chunks_upserted_total",
				Help: "Total number of chunks written through the vector store router.",
			},
		)

		vectorQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_vector_queries_total",
				Help: "Total number of vector store queries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		chatTurnsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_chat_turns_total",
				Help: "Total number of chat turns processed, labeled by mode.",
			},
			[]string{"mode"},
		)

		answerFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_answer_fallbacks_total",
				Help: "Total number of answers served without the generation provider.",
			},
		)

		sessionDegradedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_session_degraded_total",
				Help: "Total number of session operations that fell back to the secondary store, labeled by op.",
			},
			[]string{"op"},
		)

		inquiriesEmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_inquiries_emitted_total",
				Help: "Total number of inquiries emitted from completed conversations.",
			},
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

// ObserveCrawlPage records one fetched page and its outcome
// (indexed, skipped, error).
func ObserveCrawlPage(site string, outcome string) {
	Init()
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveJob increments the finished-job counter for the given status.
func ObserveJob(status string) {
	Init()
	crawlerJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveUpsert records chunks written to the vector store.
func ObserveUpsert(count int) {
	Init()
	chunksUpsertedTotal.Add(float64(count))
}

// ObserveVectorQuery records one similarity query and its outcome.
func ObserveVectorQuery(outcome string) {
	Init()
	vectorQueriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveChatTurn records one processed chat turn in the given mode.
func ObserveChatTurn(mode string) {
	Init()
	chatTurnsTotal.WithLabelValues(mode).Inc()
}

// ObserveAnswerFallback records an answer served from a raw excerpt.
func ObserveAnswerFallback() {
	Init()
	answerFallbacksTotal.Inc()
}

// ObserveSessionDegraded records a session op that used the secondary store.
func ObserveSessionDegraded(op string) {
	Init()
	sessionDegradedTotal.WithLabelValues(op).Inc()
}

// ObserveInquiry records one emitted inquiry.
func ObserveInquiry() {
	Init()
	inquiriesEmittedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
