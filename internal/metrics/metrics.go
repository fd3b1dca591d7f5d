// Package metrics exposes the exam engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "placement_sessions_started_total",
			Help: "Total number of exam sessions started",
		},
	)

	ResponsesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_responses_evaluated_total",
			Help: "Total number of evaluated responses",
		},
		[]string{"method", "mock"},
	)

	LevelsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_levels_completed_total",
			Help: "Total number of completed levels",
		},
		[]string{"level", "outcome"},
	)

	ExamsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "placement_exams_completed_total",
			Help: "Total number of completed exams",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "placement_active_sessions_current",
			Help: "Current number of in-progress exam sessions",
		},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "placement_provider_duration_seconds",
			Help:    "Time spent in assessment provider calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"mode", "status"},
	)
)

// Outcome label values for LevelsCompleted.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

// MockLabel renders the mock flag of ResponsesEvaluated.
func MockLabel(mock bool) string {
	if mock {
		return "true"
	}
	return "false"
}
