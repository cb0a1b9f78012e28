// Package metrics provides Prometheus metrics for opswatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "opswatch"
)

// Alert evaluation metrics
var (
	// EvaluationTicks counts alert evaluation ticks.
	EvaluationTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "evaluation_ticks_total",
			Help:      "Total alert evaluation ticks",
		},
	)

	// Transitions counts detected alert state transitions by direction.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "transitions_total",
			Help:      "Total alert state transitions",
		},
		[]string{"key", "to"},
	)

	// RulesFiring tracks rules currently in firing state.
	RulesFiring = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "rules_firing",
			Help:      "Number of alert rules currently firing",
		},
	)
)

// Notification metrics
var (
	// NotificationAttempts counts delivery attempts by outcome.
	NotificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "attempts_total",
			Help:      "Total webhook delivery attempts",
		},
		[]string{"status"},
	)

	// NotificationsSkipped counts skipped deliveries by reason.
	NotificationsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "skipped_total",
			Help:      "Total notifications skipped before dispatch",
		},
		[]string{"reason"},
	)
)

// Billing correlation metrics
var (
	// CorrelationStates counts correlator diagnoses by delay state.
	CorrelationStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "correlation_states_total",
			Help:      "Total billing correlations computed, by delay state",
		},
		[]string{"state"},
	)

	// ProviderSnapshotErrors counts failed payment-provider snapshot calls.
	ProviderSnapshotErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "provider_snapshot_errors_total",
			Help:      "Total payment provider snapshot failures",
		},
	)
)

// Case workflow metrics
var (
	// CaseConflicts counts claim attempts lost to another actor.
	CaseConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "claim_conflicts_total",
			Help:      "Total case claims rejected due to ownership conflict",
		},
	)

	// CaseTransitions counts case status changes.
	CaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "status_transitions_total",
			Help:      "Total case status transitions",
		},
		[]string{"to"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)
