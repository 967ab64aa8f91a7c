package processors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/jobs"
	"facility-alerting/internal/models"
	"facility-alerting/internal/threshold"
)

// complianceLimits are the averaged power-quality limits of one standard.
// A zero limit is not checked.
type complianceLimits struct {
	PowerFactorMin float64
	THDVoltageMax  float64
	THDCurrentMax  float64
	UnbalanceMax   float64
}

var standards = map[string]complianceLimits{
	"IEEE-519":  {THDVoltageMax: 8, THDCurrentMax: 15},
	"EN-50160":  {THDVoltageMax: 8, UnbalanceMax: 2},
	"IEC-61000": {THDVoltageMax: 8, THDCurrentMax: 20, UnbalanceMax: 2},
	"ISO-50001": {PowerFactorMin: 0.9, THDVoltageMax: 8, THDCurrentMax: 20, UnbalanceMax: 2},
}

// Compliance audits a building's averaged power quality against a named
// standard and raises compliance_violation alerts.
type Compliance struct {
	Deps
}

type complianceCheck struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Limit     float64 `json:"limit"`
	Passed    bool    `json:"passed"`
	Message   string  `json:"message,omitempty"`
}

func (c *Compliance) Process(ctx context.Context, job models.BackgroundJob, progress jobs.ProgressFunc) (map[string]any, error) {
	p := job.Parameters
	buildingID, _ := p.Int64("building_id")
	standard := strings.ToUpper(strings.TrimSpace(p.String("standard")))
	limits, ok := standards[standard]
	if !ok {
		return nil, errs.NewValidation(fmt.Sprintf("unsupported compliance standard %q", p.String("standard")))
	}
	start, end := dateRange(p, c.now(), 30*24*time.Hour)
	log := c.log(job)

	row, err := c.DB.QueryOne(ctx, `
	SELECT
		COUNT(*) AS sample_count,
		AVG(power_factor) AS avg_power_factor,
		AVG(thd_voltage) AS avg_thd_voltage,
		AVG(thd_current) AS avg_thd_current,
		AVG(voltage_unbalance) AS avg_voltage_unbalance
	FROM power_quality_readings
	WHERE building_id = $1 AND recorded_at >= $2 AND recorded_at <= $3`,
		buildingID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load power quality averages: %w", err)
	}
	progress(40)

	result := map[string]any{
		"building_id": buildingID,
		"standard":    standard,
		"start_date":  start.Format(time.RFC3339),
		"end_date":    end.Format(time.RFC3339),
	}
	if row == nil || row.Int("sample_count") == 0 {
		result["status"] = "insufficient_data"
		result["sample_count"] = 0
		return result, nil
	}
	result["sample_count"] = row.Int("sample_count")

	var auditID *int64
	if id, ok := p.Int64("audit_id"); ok {
		auditID = &id
	}

	checks := []complianceCheck{}
	violations := 0
	for _, t := range limits.thresholds() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		avg := row.NullFloat64("avg_" + t.Parameter)
		if avg == nil {
			continue
		}
		check := complianceCheck{Parameter: t.Parameter, Value: round2(*avg), Passed: true}
		if t.MinValue != nil {
			check.Limit = *t.MinValue
		} else {
			check.Limit = *t.MaxValue
		}

		if v := threshold.Evaluate(*avg, t); v != nil {
			check.Passed = false
			check.Message = v.Message
			violations++
			if _, err := c.Alerts.CreateAlert(ctx, complianceAlert(buildingID, auditID, standard, v)); err != nil {
				return nil, fmt.Errorf("failed to raise compliance alert for %s: %w", t.Parameter, err)
			}
		}
		checks = append(checks, check)
	}
	progress(90)

	result["checks"] = checks
	result["violations"] = violations
	result["compliant"] = violations == 0
	if violations == 0 {
		result["status"] = "pass"
	} else {
		result["status"] = "fail"
	}
	log.Infof("Compliance check against %s: %d violation(s)", standard, violations)
	return result, nil
}

// thresholds expresses the limits as thresholds in parameter order.
func (l complianceLimits) thresholds() []models.AlertThreshold {
	var out []models.AlertThreshold
	add := func(param string, lo, hi float64) {
		t := models.AlertThreshold{Parameter: param, Severity: models.SeverityHigh, Enabled: true}
		if lo > 0 {
			t.MinValue = float64Ptr(lo)
		}
		if hi > 0 {
			t.MaxValue = float64Ptr(hi)
		}
		out = append(out, t)
	}
	if l.PowerFactorMin > 0 {
		add("power_factor", l.PowerFactorMin, 0)
	}
	if l.THDCurrentMax > 0 {
		add("thd_current", 0, l.THDCurrentMax)
	}
	if l.THDVoltageMax > 0 {
		add("thd_voltage", 0, l.THDVoltageMax)
	}
	if l.UnbalanceMax > 0 {
		add("voltage_unbalance", 0, l.UnbalanceMax)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Parameter < out[j].Parameter })
	return out
}

func complianceAlert(buildingID int64, auditID *int64, standard string, v *threshold.Violation) models.Alert {
	return models.Alert{
		Type:           models.AlertTypeComplianceViolation,
		Severity:       v.Severity,
		Title:          fmt.Sprintf("%s compliance violation: %s", standard, v.Parameter),
		Message:        v.Message,
		BuildingID:     int64Ptr(buildingID),
		AuditID:        auditID,
		DetectedValue:  float64Ptr(v.Value),
		ThresholdValue: float64Ptr(v.Limit),
		Metadata: map[string]any{
			"standard":  standard,
			"parameter": v.Parameter,
			"bound":     v.Bound,
		},
	}
}
