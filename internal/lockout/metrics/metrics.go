package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for lockout operations.
type Metrics struct {
	FailedAttempts      prometheus.Counter
	Lockouts            prometheus.Counter
	Unlocks             *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	SignedURLRejections *prometheus.CounterVec
	GuardDenials        prometheus.Counter
	GuardCheckErrors    prometheus.Counter

	PruneRuns       *prometheus.CounterVec
	PruneDeleted    *prometheus.CounterVec
	PruneDurationMs prometheus.Histogram
}

// New registers and returns lockout metrics collectors.
func New() *Metrics {
	return &Metrics{
		FailedAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lockgate_failed_attempts_total",
			Help: "Total number of failed login attempts recorded",
		}),
		Lockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lockgate_lockouts_total",
			Help: "Total number of lock records created",
		}),
		Unlocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_unlocks_total",
			Help: "Total number of unlock operations by trigger",
		}, []string{"trigger"}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_notifications_sent_total",
			Help: "Total number of lockout notifications dispatched by channel",
		}, []string{"channel"}),
		SignedURLRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_signed_url_rejections_total",
			Help: "Total number of signed URL validations rejected by reason",
		}, []string{"reason"}),
		GuardDenials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lockgate_guard_denials_total",
			Help: "Total number of requests denied by the access guard",
		}),
		GuardCheckErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lockgate_guard_check_errors_total",
			Help: "Total number of guard check failures (fail-open events)",
		}),
		PruneRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_prune_runs_total",
			Help: "Total number of prune runs by outcome",
		}, []string{"outcome"}),
		PruneDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_prune_deleted_total",
			Help: "Total number of rows deleted by prune runs per table",
		}, []string{"table"}),
		PruneDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lockgate_prune_duration_ms",
			Help:    "Duration of prune runs in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
}
