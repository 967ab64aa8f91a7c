package processors

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"facility-alerting/internal/jobs"
	"facility-alerting/internal/models"
)

// anomalyZScore is the deviation, in standard deviations, above which a
// reading counts as anomalous.
const anomalyZScore = 3.0

// Analytics summarises energy consumption over a date range and raises
// energy_anomaly alerts for outlying readings.
type Analytics struct {
	Deps
}

func (a *Analytics) Process(ctx context.Context, job models.BackgroundJob, progress jobs.ProgressFunc) (map[string]any, error) {
	p := job.Parameters
	buildingID, _ := p.Int64("building_id")
	start, end := dateRange(p, a.now(), 30*24*time.Hour)
	log := a.log(job)

	query := `
	SELECT id, equipment_id, recorded_at, consumption_kwh, demand_kw
	FROM energy_consumption
	WHERE building_id = $1 AND recorded_at >= $2 AND recorded_at <= $3`
	args := []any{buildingID, start, end}
	equipmentID, hasEquipment := p.Int64("equipment_id")
	if hasEquipment {
		query += ` AND equipment_id = $4`
		args = append(args, equipmentID)
	}
	query += ` ORDER BY recorded_at ASC, id ASC`

	rows, err := a.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load energy readings: %w", err)
	}
	progress(25)

	result := map[string]any{
		"building_id":   buildingID,
		"start_date":    start.Format(time.RFC3339),
		"end_date":      end.Format(time.RFC3339),
		"analysis_type": p.String("analysis_type"),
		"reading_count": len(rows),
	}
	if len(rows) == 0 {
		result["anomaly_count"] = 0
		log.Infof("No energy readings in range")
		return result, nil
	}

	consumption := make([]float64, len(rows))
	var total, peak float64
	var peakAt time.Time
	for i, r := range rows {
		consumption[i] = r.Float64("consumption_kwh")
		total += consumption[i]
		if d := r.Float64("demand_kw"); d > peak || i == 0 {
			peak = d
			peakAt = r.Time("recorded_at")
		}
	}
	avg := mean(consumption)
	sd := stddev(consumption, avg)

	result["total_consumption_kwh"] = round2(total)
	result["average_consumption_kwh"] = round2(avg)
	result["stddev_consumption_kwh"] = round2(sd)
	result["peak_demand_kw"] = round2(peak)
	result["peak_demand_at"] = peakAt.UTC().Format(time.RFC3339)
	progress(50)

	anomalies := 0
	alertIDs := []int64{}
	if sd > 0 {
		for i, r := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			z := (consumption[i] - avg) / sd
			if math.Abs(z) <= anomalyZScore {
				continue
			}
			alert, err := a.Alerts.CreateAlert(ctx, anomalyAlert(buildingID, r.NullInt64("equipment_id"), r.Int64("id"), consumption[i], avg, z, r.Time("recorded_at")))
			if err != nil {
				return nil, fmt.Errorf("failed to raise anomaly alert: %w", err)
			}
			anomalies++
			if !slices.Contains(alertIDs, alert.ID) {
				alertIDs = append(alertIDs, alert.ID)
			}
		}
	}
	result["anomaly_count"] = anomalies
	result["alert_ids"] = alertIDs
	progress(80)

	if p.Bool("include_baseline") {
		baseline, err := a.baseline(ctx, buildingID, start, end)
		if err != nil {
			return nil, err
		}
		result["baseline_consumption_kwh"] = round2(baseline)
		if baseline > 0 {
			result["change_percentage"] = round2((total - baseline) / baseline * 100)
		}
	}

	log.Infof("Analysed %d readings, %d anomalies", len(rows), anomalies)
	return result, nil
}

// baseline is the consumption of the equally long period before start.
func (a *Analytics) baseline(ctx context.Context, buildingID int64, start, end time.Time) (float64, error) {
	row, err := a.DB.QueryOne(ctx, `
	SELECT COALESCE(SUM(consumption_kwh), 0) AS total
	FROM energy_consumption
	WHERE building_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		buildingID, start.Add(-end.Sub(start)), start)
	if err != nil {
		return 0, fmt.Errorf("failed to load baseline consumption: %w", err)
	}
	if row == nil {
		return 0, nil
	}
	return row.Float64("total"), nil
}

func anomalyAlert(buildingID int64, equipmentID *int64, readingID int64, value, avg, z float64, at time.Time) models.Alert {
	severity := models.SeverityMedium
	if math.Abs(z) > 2*anomalyZScore {
		severity = models.SeverityHigh
	}
	return models.Alert{
		Type:            models.AlertTypeEnergyAnomaly,
		Severity:        severity,
		Title:           "Unusual energy consumption",
		Message:         fmt.Sprintf("consumption of %s kWh deviates from the mean of %s kWh (z-score %.1f)", strconv.FormatFloat(round2(value), 'f', -1, 64), strconv.FormatFloat(round2(avg), 'f', -1, 64), z),
		BuildingID:      int64Ptr(buildingID),
		EquipmentID:     equipmentID,
		EnergyReadingID: int64Ptr(readingID),
		DetectedValue:   float64Ptr(value),
		ThresholdValue:  float64Ptr(round2(avg)),
		Metadata: map[string]any{
			"z_score":     round2(z),
			"recorded_at": at.UTC().Format(time.RFC3339),
		},
	}
}
