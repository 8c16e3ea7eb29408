package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grievance_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grievance_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	GrievancesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grievances_created_total",
		Help: "Grievances submitted.",
	})

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grievance_status_transitions_total",
			Help: "Grievance status transitions by source and target status.",
		},
		[]string{"from", "to"},
	)

	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications persisted by triggering event.",
		},
		[]string{"event"},
	)

	NotificationsDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dead_lettered_total",
			Help: "Events that exhausted their retries and were dead-lettered.",
		},
		[]string{"topic"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grievance_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by backend.",
		},
		[]string{"backend"},
	)
)
