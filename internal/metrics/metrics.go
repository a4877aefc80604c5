// Package metrics provides Prometheus instrumentation for FraudLens.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudlens",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudlens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsScoredTotal counts scored transactions by mode and label.
	TransactionsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudlens",
			Name:      "transactions_scored_total",
			Help:      "Total transactions scored by mode and label.",
		},
		[]string{"mode", "label"},
	)

	// RuleTriggersTotal counts rule firings by rule id.
	RuleTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudlens",
			Name:      "rule_triggers_total",
			Help:      "Total rule firings by rule id.",
		},
		[]string{"rule"},
	)

	// ScoringErrorsTotal counts rejected transactions by mode and error kind.
	ScoringErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudlens",
			Name:      "scoring_errors_total",
			Help:      "Total transactions rejected by mode and error kind.",
		},
		[]string{"mode", "kind"},
	)

	// BatchRowsTotal counts batch rows by outcome.
	BatchRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudlens",
			Name:      "batch_rows_total",
			Help:      "Total batch rows processed by status.",
		},
		[]string{"status"},
	)

	// BatchDuration observes batch pipeline latency.
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fraudlens",
			Name:      "batch_duration_seconds",
			Help:      "Batch pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// AlertsTotal counts High-label alerts raised by the alert worker.
	AlertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraudlens",
			Name:      "alerts_total",
			Help:      "Total high-risk alerts published.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsScoredTotal,
		RuleTriggersTotal,
		ScoringErrorsTotal,
		BatchRowsTotal,
		BatchDuration,
		AlertsTotal,
	)
}

// ObserveScore records one scored transaction and the rules it triggered.
func ObserveScore(mode, label string, triggered []string) {
	TransactionsScoredTotal.WithLabelValues(mode, label).Inc()
	for _, rule := range triggered {
		RuleTriggersTotal.WithLabelValues(rule).Inc()
	}
}

// ObserveError records one rejected transaction.
func ObserveError(mode, kind string) {
	ScoringErrorsTotal.WithLabelValues(mode, kind).Inc()
}

// Middleware records request metrics. Must be mounted on a chi router so the
// route pattern is available after the handler runs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		// Route pattern, not the raw path, to bound label cardinality.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(rw.status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
