package metrics

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// PassesTotal counts reconciliation passes by result (ok, error, not_ready).
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulesched_passes_total",
			Help: "Total number of reconciliation passes by result",
		},
		[]string{"result"},
	)

	// PassDuration tracks how long one reconciliation pass takes.
	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulesched_pass_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// OutcomesTotal counts per-record outcomes (noop, changed, annotated, expired, failed).
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulesched_record_outcomes_total",
			Help: "Total number of reconciled records by outcome",
		},
		[]string{"outcome"},
	)

	// SchedulesActive is the number of records seen by the last pass.
	SchedulesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulesched_schedules",
			Help: "Number of schedule records seen by the last pass",
		},
	)

	// CheckJobsRunning is the number of API-triggered checks in flight.
	CheckJobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulesched_check_jobs_running",
			Help: "Number of API check jobs currently running",
		},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal, PassesTotal, PassDuration, OutcomesTotal, SchedulesActive, CheckJobsRunning)
	})
}

// NormalizePath reduces cardinality: numeric segments become {id} and
// everything under /schedules/ or /rulesets/ (PCE hrefs) collapses to {ref}.
// E.g. /schedules/orgs/1/sec_policy/draft/rule_sets/7 -> /schedules/{ref}.
func NormalizePath(path string) string {
	for _, prefix := range []string{"/schedules/", "/rulesets/", "/checks/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{ref}"
		}
	}
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// ObservePass records one finished pass.
func ObservePass(result string, durationSeconds float64, records int) {
	PassesTotal.WithLabelValues(result).Inc()
	PassDuration.Observe(durationSeconds)
	if result == "ok" {
		SchedulesActive.Set(float64(records))
	}
}

// IncOutcome counts one record outcome.
func IncOutcome(outcome string) {
	OutcomesTotal.WithLabelValues(outcome).Inc()
}
