package processors

import (
	"context"
	"fmt"
	"math"
	"time"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/jobs"
	"facility-alerting/internal/models"
)

const (
	defaultHorizonDays         = 30
	defaultMaintenanceInterval = 180
	failureLookbackDays        = 90
	// Each recent failure pulls the predicted date forward by a week.
	failurePenaltyDays = 7
	day                = 24 * time.Hour
)

// Maintenance predicts when a piece of equipment next needs service and
// raises maintenance_due when that falls inside the horizon.
type Maintenance struct {
	Deps
}

func (m *Maintenance) Process(ctx context.Context, job models.BackgroundJob, progress jobs.ProgressFunc) (map[string]any, error) {
	p := job.Parameters
	equipmentID, _ := p.Int64("equipment_id")
	horizon := p.IntOr("horizon_days", defaultHorizonDays)
	now := m.now().UTC()
	log := m.log(job)

	eq, err := m.DB.QueryOne(ctx, `
	SELECT id, building_id, name, installation_date, last_maintenance_date, maintenance_interval_days
	FROM equipment
	WHERE id = $1`, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load equipment %d: %w", equipmentID, err)
	}
	if eq == nil {
		return nil, errs.NotFound("equipment", equipmentID)
	}
	progress(30)

	failures, err := m.DB.QueryOne(ctx, `
	SELECT COUNT(*) AS failure_count
	FROM alerts
	WHERE equipment_id = $1 AND type = $2 AND created_at >= $3`,
		equipmentID, models.AlertTypeEquipmentFailure, now.Add(-failureLookbackDays*day))
	if err != nil {
		return nil, fmt.Errorf("failed to count equipment failures: %w", err)
	}
	failureCount := 0
	if failures != nil {
		failureCount = failures.Int("failure_count")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(60)

	interval := eq.Int("maintenance_interval_days")
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	last := now
	if t := eq.NullTime("last_maintenance_date"); t != nil {
		last = t.UTC()
	} else if t := eq.NullTime("installation_date"); t != nil {
		last = t.UTC()
	}
	var ageYears float64
	if t := eq.NullTime("installation_date"); t != nil {
		ageYears = now.Sub(*t).Hours() / 24 / 365
	}

	daysSince := int(now.Sub(last) / day)
	dueIn := interval - daysSince - failureCount*failurePenaltyDays
	predicted := now.Add(time.Duration(dueIn) * day)
	score := riskScore(daysSince, interval, failureCount, ageYears)
	due := dueIn <= horizon

	result := map[string]any{
		"equipment_id":               equipmentID,
		"equipment_name":             eq.String("name"),
		"days_since_maintenance":     daysSince,
		"maintenance_interval_days":  interval,
		"failure_count":              failureCount,
		"age_years":                  round2(ageYears),
		"risk_score":                 score,
		"risk_level":                 riskLevel(score),
		"predicted_maintenance_date": predicted.Format("2006-01-02"),
		"days_until_maintenance":     dueIn,
		"horizon_days":               horizon,
		"maintenance_due":            due,
	}

	if due {
		buildingID := eq.NullInt64("building_id")
		if buildingID == nil {
			if id, ok := p.Int64("building_id"); ok {
				buildingID = &id
			}
		}
		alert, err := m.Alerts.CreateAlert(ctx, maintenanceAlert(eq.String("name"), equipmentID, buildingID, dueIn, predicted, score))
		if err != nil {
			return nil, fmt.Errorf("failed to raise maintenance alert: %w", err)
		}
		result["alert_id"] = alert.ID
	}
	progress(90)

	log.Infof("Equipment %d: risk %.2f, maintenance in %d day(s)", equipmentID, score, dueIn)
	return result, nil
}

// riskScore weights maintenance overdue-ness, recent failures and age into
// a 0..1 score.
func riskScore(daysSince, interval, failures int, ageYears float64) float64 {
	overdue := math.Min(float64(daysSince)/float64(interval), 1.5) / 1.5
	failing := math.Min(float64(failures), 5) / 5
	age := math.Min(ageYears/20, 1)
	return round2(0.6*overdue + 0.3*failing + 0.1*age)
}

func riskLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func maintenanceAlert(name string, equipmentID int64, buildingID *int64, dueIn int, predicted time.Time, score float64) models.Alert {
	severity := models.SeverityMedium
	msg := fmt.Sprintf("%s is due for maintenance in %d day(s), on %s", name, dueIn, predicted.Format("2006-01-02"))
	if dueIn < 0 {
		severity = models.SeverityHigh
		msg = fmt.Sprintf("%s is %d day(s) overdue for maintenance", name, -dueIn)
	}
	return models.Alert{
		Type:        models.AlertTypeMaintenanceDue,
		Severity:    severity,
		Title:       "Maintenance due",
		Message:     msg,
		BuildingID:  buildingID,
		EquipmentID: int64Ptr(equipmentID),
		Metadata: map[string]any{
			"predicted_maintenance_date": predicted.Format("2006-01-02"),
			"risk_score":                 score,
		},
	}
}
