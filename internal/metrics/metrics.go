// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "face_scan"

var (
	scanOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "sessions_total",
			Help:      "Count of scan pipelines by outcome (completed, failed, abandoned).",
		},
		[]string{"outcome"},
	)
	scanStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each scan pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	historyRefreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "history_refresh_failures_total",
			Help:      "Count of failed scan history reloads.",
		},
	)
	routineMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routines",
			Name:      "mutations_total",
			Help:      "Count of routine list mutations by operation.",
		},
		[]string{"operation"},
	)
	routineDecodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routines",
			Name:      "decode_failures_total",
			Help:      "Count of stored routine payloads that could not be decoded.",
		},
	)
	authRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Count of requests rejected for a missing or invalid session, by reason.",
		},
		[]string{"reason"},
	)
)

var registerMetrics sync.Once

// Register all metrics with the given registerer.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(scanOutcomes)
		reg.MustRegister(scanStageDuration)
		reg.MustRegister(historyRefreshFailures)
		reg.MustRegister(routineMutations)
		reg.MustRegister(routineDecodeFailures)
		reg.MustRegister(authRejections)
	})
}

// RecordScanOutcome counts a finished pipeline.
func RecordScanOutcome(outcome string) {
	scanOutcomes.WithLabelValues(outcome).Inc()
}

// RecordStageDuration observes how long a pipeline stage took.
func RecordStageDuration(stage string, d time.Duration) {
	scanStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordHistoryRefreshFailure counts a history reload that failed.
func RecordHistoryRefreshFailure() {
	historyRefreshFailures.Inc()
}

// RecordRoutineMutation counts a routine add/update/delete/save.
func RecordRoutineMutation(operation string) {
	routineMutations.WithLabelValues(operation).Inc()
}

// RecordRoutineDecodeFailure counts a malformed stored routine payload.
func RecordRoutineDecodeFailure() {
	routineDecodeFailures.Inc()
}

// RecordAuthRejection counts a request turned away by the auth middleware.
func RecordAuthRejection(reason string) {
	authRejections.WithLabelValues(reason).Inc()
}
