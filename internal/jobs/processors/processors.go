// Package processors implements the background job types run by the queue.
package processors

import (
	"context"
	"math"
	"time"

	"facility-alerting/internal/db"
	"facility-alerting/internal/jobs"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
)

type AlertCreator interface {
	CreateAlert(ctx context.Context, data models.Alert) (models.Alert, error)
}

type ReadingIngester interface {
	Ingest(ctx context.Context, r models.Reading) ([]models.Alert, error)
}

type EscalationSweeper interface {
	ProcessEscalations(ctx context.Context) (int, error)
}

// Deps are shared by every processor. Ingester and Escalations are only
// needed by alert monitoring.
type Deps struct {
	DB          db.DataAccess
	Alerts      AlertCreator
	Ingester    ReadingIngester
	Escalations EscalationSweeper
	Logger      *logging.Logger
	Now         func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) log(job models.BackgroundJob) *logging.Logger {
	return d.Logger.WithFields(map[string]interface{}{"job_id": job.ID, "job_type": job.JobType})
}

// Register installs a processor for every job type.
func Register(q *jobs.Queue, deps Deps) {
	q.Register(models.JobTypeAnalyticsProcessing, &Analytics{deps})
	q.Register(models.JobTypeAlertMonitoring, &Monitoring{deps})
	q.Register(models.JobTypeComplianceCheck, &Compliance{deps})
	q.Register(models.JobTypeMaintenancePrediction, &Maintenance{deps})
	q.Register(models.JobTypeForecastGeneration, &Forecast{deps})
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return math.Sqrt(sq / float64(len(values)))
}

// linearFit returns the least-squares intercept and slope of ys over xs.
func linearFit(xs, ys []float64) (intercept, slope float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	mx, my := mean(xs), mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return my, 0
	}
	slope = num / den
	return my - slope*mx, slope
}

// dateRange reads start_date/end_date, defaulting to the trailing window
// ending now.
func dateRange(p models.JobParams, now time.Time, window time.Duration) (time.Time, time.Time) {
	end, ok := p.Time("end_date")
	if !ok {
		end = now
	}
	start, ok := p.Time("start_date")
	if !ok {
		start = end.Add(-window)
	}
	return start.UTC(), end.UTC()
}

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }
