package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	JobTypeAnalyticsProcessing   = "analytics_processing"
	JobTypeAlertMonitoring       = "alert_monitoring"
	JobTypeComplianceCheck       = "compliance_check"
	JobTypeMaintenancePrediction = "maintenance_prediction"
	JobTypeForecastGeneration    = "forecast_generation"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

var JobStatuses = []string{
	JobStatusPending,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// BackgroundJob is a unit of asynchronous work.
type BackgroundJob struct {
	ID                 int64          `json:"id"`
	JobType            string         `json:"job_type"`
	Status             string         `json:"status"`
	BuildingID         *int64         `json:"building_id,omitempty"`
	EquipmentID        *int64         `json:"equipment_id,omitempty"`
	Parameters         JobParams      `json:"job_parameters"`
	ProgressPercentage int            `json:"progress_percentage"`
	ResultData         map[string]any `json:"result_data,omitempty"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (j BackgroundJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobStats summarises the queue for dashboards.
type JobStats struct {
	CountsByStatus       map[string]int  `json:"counts_by_status"`
	RecentJobs           []BackgroundJob `json:"recent_jobs"`
	AverageProcessingSec float64         `json:"average_processing_seconds"`
	InFlight             int             `json:"in_flight"`
}

// JobParams are the typed parameters of a job. Values follow JSON decoding
// rules: numbers are float64, dates are strings.
type JobParams map[string]any

// Has reports whether key is present with a non-null value.
func (p JobParams) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p JobParams) Int64(key string) (int64, bool) {
	return ParseInt(p[key])
}

func (p JobParams) IntOr(key string, def int) int {
	if n, ok := p.Int64(key); ok {
		return int(n)
	}
	return def
}

func (p JobParams) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (p JobParams) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func (p JobParams) Time(key string) (time.Time, bool) {
	return ParseDate(p[key])
}

func (p JobParams) Clone() JobParams {
	out := make(JobParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// maxExactFloat is the largest magnitude below which every integer has an
// exact float64 representation.
const maxExactFloat = 1 << 53

// ParseInt accepts integral numbers and numeric strings.
func ParseInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) || math.Abs(n) > maxExactFloat {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts time values, RFC3339 strings and YYYY-MM-DD.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(d)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
