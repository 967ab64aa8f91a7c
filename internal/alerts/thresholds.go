package alerts

import (
	"context"

	"facility-alerting/internal/db"
	"facility-alerting/internal/errs"
	"facility-alerting/internal/models"
)

// ThresholdRepository loads the thresholds that apply to a reading scope.
type ThresholdRepository interface {
	// ThresholdsFor returns enabled thresholds scoped to the building (or
	// global) and to the equipment (or global). A nil equipmentID matches
	// equipment-global thresholds only.
	ThresholdsFor(ctx context.Context, buildingID int64, equipmentID *int64) ([]models.AlertThreshold, error)
}

type ThresholdStore struct {
	db db.DataAccess
}

var _ ThresholdRepository = (*ThresholdStore)(nil)

func NewThresholdStore(da db.DataAccess) *ThresholdStore {
	return &ThresholdStore{db: da}
}

func (s *ThresholdStore) ThresholdsFor(ctx context.Context, buildingID int64, equipmentID *int64) ([]models.AlertThreshold, error) {
	query := `
	SELECT id, building_id, equipment_id, parameter, min_value, max_value, severity, enabled,
		escalation_minutes, notification_emails, created_at, updated_at
	FROM alert_thresholds
	WHERE enabled = true
		AND (building_id IS NULL OR building_id = $1)
		AND (equipment_id IS NULL OR equipment_id = $2)
	ORDER BY parameter, equipment_id NULLS LAST, building_id NULLS LAST, id`

	rows, err := s.db.Query(ctx, query, buildingID, equipmentID)
	if err != nil {
		return nil, errs.Store("failed to load alert thresholds", err)
	}

	list := make([]models.AlertThreshold, 0, len(rows))
	for _, r := range rows {
		list = append(list, models.AlertThreshold{
			ID:                 r.Int64("id"),
			BuildingID:         r.NullInt64("building_id"),
			EquipmentID:        r.NullInt64("equipment_id"),
			Parameter:          r.String("parameter"),
			MinValue:           r.NullFloat64("min_value"),
			MaxValue:           r.NullFloat64("max_value"),
			Severity:           r.String("severity"),
			Enabled:            r.Bool("enabled"),
			EscalationMinutes:  r.Int("escalation_minutes"),
			NotificationEmails: r.Strings("notification_emails"),
			CreatedAt:          r.Time("created_at"),
			UpdatedAt:          r.Time("updated_at"),
		})
	}
	return list, nil
}
