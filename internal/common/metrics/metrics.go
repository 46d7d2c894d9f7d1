// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueJobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued per queue",
		},
		[]string{"queue"},
	)

	QueueJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_jobs_completed_total",
			Help: "Total number of jobs completed per queue",
		},
		[]string{"queue"},
	)

	QueueJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_jobs_failed_total",
			Help: "Total number of jobs moved to the failed state per queue",
		},
		[]string{"queue", "error_code"},
	)

	QueueJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notifier_queue_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"queue"},
	)

	QueueJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifier_queue_jobs_active",
			Help: "Number of jobs currently being processed per queue",
		},
		[]string{"queue"},
	)

	QueueRateLimitDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_rate_limit_deferred_total",
			Help: "Jobs deferred by the per-queue rolling-window rate limiter",
		},
		[]string{"queue"},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_delivered_total",
			Help: "Notifications delivered per channel",
		},
		[]string{"channel"},
	)

	PushTokensPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_push_tokens_pruned_total",
			Help: "Push tokens deleted after the provider reported them invalid",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_online_users",
			Help: "Users with at least one live socket connection",
		},
	)
)
