package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "facility_alerting"

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var (
	alertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts inserted, partitioned by type and severity.",
		},
		[]string{"type", "severity"},
	)

	alertsDeduplicatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_deduplicated_total",
			Help:      "Alert creations folded into an existing active alert.",
		},
		[]string{"type"},
	)

	alertEscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_escalations_total",
			Help:      "Escalation steps applied, partitioned by severity.",
		},
		[]string{"severity"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, partitioned by channel and status.",
		},
		[]string{"channel", "status"},
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs finished, partitioned by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job processing time in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Background jobs currently being processed.",
		},
	)
)

// Register attaches the collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		alertsCreatedTotal,
		alertsDeduplicatedTotal,
		alertEscalationsTotal,
		notificationsTotal,
		jobsProcessedTotal,
		jobDurationSeconds,
		jobsInFlight,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func AlertCreated(alertType, severity string) {
	alertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

func AlertDeduplicated(alertType string) {
	alertsDeduplicatedTotal.WithLabelValues(alertType).Inc()
}

func AlertEscalated(severity string) {
	alertEscalationsTotal.WithLabelValues(severity).Inc()
}

func NotificationDelivered(channel, status string) {
	notificationsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveJob records a finished job. Unknown outcomes are counted as failed.
func ObserveJob(jobType, outcome string, duration time.Duration) {
	switch outcome {
	case OutcomeCompleted, OutcomeCancelled:
	default:
		outcome = OutcomeFailed
	}
	jobsProcessedTotal.WithLabelValues(jobType, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	jobDurationSeconds.WithLabelValues(jobType).Observe(duration.Seconds())
}

func SetJobsInFlight(n int) {
	jobsInFlight.Set(float64(n))
}
