// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_transitions_total",
			Help: "Total number of successful status transitions",
		},
		[]string{"service_type", "status"},
	)

	TransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_transitions_rejected_total",
			Help: "Total number of rejected transition attempts",
		},
		[]string{"error_code"},
	)

	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_side_effect_failures_total",
			Help: "Total number of post-commit hook failures",
		},
		[]string{"hook"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notifications_sent_total",
			Help: "Total number of notifications delivered per channel",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notifications_failed_total",
			Help: "Total number of notification delivery failures per channel",
		},
		[]string{"channel"},
	)

	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_assignments_total",
			Help: "Total number of assignment attempts by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "portal_http_request_duration_seconds",
			Help: "Duration of HTTP request handling in seconds",
		},
		[]string{"route", "method", "status"},
	)
)
