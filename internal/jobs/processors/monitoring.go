package processors

import (
	"context"
	"fmt"
	"time"

	"facility-alerting/internal/db"
	"facility-alerting/internal/jobs"
	"facility-alerting/internal/models"
)

const defaultLookbackMinutes = 60

var powerQualityColumns = []string{
	"voltage_l1", "voltage_l2", "voltage_l3",
	"thd_voltage", "thd_current", "frequency", "power_factor", "voltage_unbalance",
}

var energyColumns = []string{"consumption_kwh", "demand_kw"}

// Monitoring re-evaluates the latest reading of every building and
// equipment pair seen in the lookback window, then optionally runs the
// escalation sweep.
type Monitoring struct {
	Deps
}

func (m *Monitoring) Process(ctx context.Context, job models.BackgroundJob, progress jobs.ProgressFunc) (map[string]any, error) {
	p := job.Parameters
	lookback := time.Duration(p.IntOr("lookback_minutes", defaultLookbackMinutes)) * time.Minute
	since := m.now().Add(-lookback).UTC()
	log := m.log(job)

	energy, err := m.latest(ctx, "energy_consumption", models.ReadingKindEnergy, energyColumns, since, p)
	if err != nil {
		return nil, err
	}
	pq, err := m.latest(ctx, "power_quality_readings", models.ReadingKindPowerQuality, powerQualityColumns, since, p)
	if err != nil {
		return nil, err
	}
	readings := append(energy, pq...)
	progress(20)

	raised := 0
	for i, r := range readings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alerts, err := m.Ingester.Ingest(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s reading for building %d: %w", r.Kind, r.BuildingID, err)
		}
		raised += len(alerts)
		progress(20 + 60*(i+1)/len(readings))
	}

	result := map[string]any{
		"lookback_minutes":   int(lookback / time.Minute),
		"readings_evaluated": len(readings),
		"alerts_raised":      raised,
	}

	if p.Bool("process_escalations") && m.Escalations != nil {
		n, err := m.Escalations.ProcessEscalations(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to process escalations: %w", err)
		}
		result["escalations"] = n
	}
	progress(95)

	log.Infof("Evaluated %d readings, raised %d alerts", len(readings), raised)
	return result, nil
}

// latest loads the most recent reading per building and equipment recorded
// since the given time.
func (m *Monitoring) latest(ctx context.Context, table, kind string, columns []string, since time.Time, p models.JobParams) ([]models.Reading, error) {
	query := `SELECT DISTINCT ON (building_id, equipment_id) id, building_id, equipment_id, recorded_at`
	for _, c := range columns {
		query += ", " + c
	}
	query += ` FROM ` + table + ` WHERE recorded_at >= $1`

	args := []any{since}
	if id, ok := p.Int64("building_id"); ok {
		args = append(args, id)
		query += fmt.Sprintf(" AND building_id = $%d", len(args))
	}
	if id, ok := p.Int64("equipment_id"); ok {
		args = append(args, id)
		query += fmt.Sprintf(" AND equipment_id = $%d", len(args))
	}
	query += ` ORDER BY building_id, equipment_id, recorded_at DESC`

	rows, err := m.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest %s readings: %w", kind, err)
	}

	readings := make([]models.Reading, 0, len(rows))
	for _, r := range rows {
		readings = append(readings, readingFromRow(r, kind, columns))
	}
	return readings, nil
}

func readingFromRow(r db.Row, kind string, columns []string) models.Reading {
	values := make(map[string]float64, len(columns))
	for _, c := range columns {
		if v := r.NullFloat64(c); v != nil {
			values[c] = *v
		}
	}
	return models.Reading{
		Kind:        kind,
		BuildingID:  r.Int64("building_id"),
		EquipmentID: r.NullInt64("equipment_id"),
		ReadingID:   r.NullInt64("id"),
		Values:      values,
		RecordedAt:  r.Time("recorded_at"),
	}
}
