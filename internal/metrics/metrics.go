// Package metrics holds the Prometheus collectors for the verifier. All
// collectors register with the default registry and are served by
// promhttp.Handler on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_submissions_total",
		Help: "Verification submissions recorded, labelled by verdict (bot, human, unknown).",
	}, []string{"verdict"})

	DuplicateSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bvg_duplicate_submissions_total",
		Help: "Resubmissions answered with an already stored log.",
	})

	SubmissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_submission_failures_total",
		Help: "Submissions that could not be recorded, labelled by stage.",
	}, []string{"stage"})

	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bvg_submission_duration_seconds",
		Help:    "Time from payload receipt to a persisted verification log.",
		Buckets: prometheus.DefBuckets,
	})

	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_validation_failures_total",
		Help: "Validation checks that failed, labelled by check name.",
	}, []string{"check"})

	ClassifierResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_classifier_results_total",
		Help: "Classifier calls, labelled by classifier and outcome (verdict, unavailable, error).",
	}, []string{"classifier", "outcome"})

	ClassifierBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bvg_classifier_breaker_state",
		Help: "Circuit breaker state per classifier (0 closed, 1 half-open, 2 open).",
	}, []string{"classifier"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_geo_lookups_total",
		Help: "IP location lookups, labelled by resolver and outcome (found, unknown, error).",
	}, []string{"resolver", "outcome"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_events_published_total",
		Help: "Submission events handed to a publisher, labelled by publisher and status.",
	}, []string{"publisher", "status"})

	StoreOperations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bvg_store_operation_duration_seconds",
		Help:    "Verification log store latency, labelled by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvg_http_requests_total",
		Help: "HTTP requests served, labelled by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bvg_http_request_duration_seconds",
		Help:    "HTTP request latency, labelled by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Outcome values for ClassifierResults.
const (
	OutcomeVerdict     = "verdict"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Outcome values for GeoLookups.
const (
	GeoFound   = "found"
	GeoUnknown = "unknown"
	GeoError   = "error"
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveStore records the latency of a store call started at start.
func ObserveStore(operation string, start time.Time) {
	StoreOperations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
