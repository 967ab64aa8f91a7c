package jobs

import (
	"fmt"
	"sort"
	"strings"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/models"
)

// Schema lists the parameter keys a job type accepts.
type Schema struct {
	Required []string
	Optional []string
}

var Schemas = map[string]Schema{
	models.JobTypeAnalyticsProcessing: {
		Required: []string{"building_id", "start_date", "end_date"},
		Optional: []string{"equipment_id", "analysis_type", "include_baseline"},
	},
	models.JobTypeAlertMonitoring: {
		Optional: []string{"building_id", "equipment_id", "lookback_minutes", "process_escalations"},
	},
	models.JobTypeComplianceCheck: {
		Required: []string{"building_id", "standard"},
		Optional: []string{"audit_id", "start_date", "end_date"},
	},
	models.JobTypeMaintenancePrediction: {
		Required: []string{"equipment_id"},
		Optional: []string{"building_id", "horizon_days"},
	},
	models.JobTypeForecastGeneration: {
		Required: []string{"building_id", "forecast_days"},
		Optional: []string{"metric", "start_date"},
	},
}

// countKeys must be positive integers no larger than their bound when
// present.
var countKeys = map[string]int64{
	"forecast_days":    365,
	"horizon_days":     365,
	"lookback_minutes": 7 * 24 * 60,
}

// Result collects every problem found rather than stopping at the first.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err converts an invalid result to a ValidationError.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return errs.NewValidation(r.Errors...)
}

// Validate checks params against the schema of jobType.
func Validate(jobType string, params models.JobParams) Result {
	schema, ok := Schemas[jobType]
	if !ok {
		return Result{Errors: []string{fmt.Sprintf("unknown job type %q", jobType)}}
	}

	var problems []string
	for _, key := range schema.Required {
		if !params.Has(key) {
			problems = append(problems, fmt.Sprintf("missing required parameter %s", key))
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !params.Has(key) {
			continue
		}
		value := params[key]
		switch {
		case strings.HasSuffix(key, "_id"):
			if _, ok := models.ParseInt(value); !ok {
				problems = append(problems, fmt.Sprintf("%s must be an integer", key))
			}
		case strings.HasSuffix(key, "_date"):
			if _, ok := models.ParseDate(value); !ok {
				problems = append(problems, fmt.Sprintf("%s must be a valid date", key))
			}
		case countKeys[key] > 0:
			n, ok := models.ParseInt(value)
			switch {
			case !ok || n <= 0:
				problems = append(problems, fmt.Sprintf("%s must be a positive integer", key))
			case n > countKeys[key]:
				problems = append(problems, fmt.Sprintf("%s must be at most %d", key, countKeys[key]))
			}
		}
	}

	if start, ok := params.Time("start_date"); ok {
		if end, ok := params.Time("end_date"); ok && end.Before(start) {
			problems = append(problems, "end_date must not be before start_date")
		}
	}

	if len(problems) > 0 {
		return Result{Errors: problems}
	}
	return Result{Valid: true}
}
