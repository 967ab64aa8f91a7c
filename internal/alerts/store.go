package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"facility-alerting/internal/db"
	"facility-alerting/internal/errs"
	"facility-alerting/internal/models"
)

// Repository is the persistence surface of the alert service.
type Repository interface {
	// FindDuplicate returns the newest active alert with the same type,
	// building and equipment created at or after since, or nil.
	FindDuplicate(ctx context.Context, alertType string, buildingID, equipmentID *int64, since time.Time) (*models.Alert, error)
	Insert(ctx context.Context, alert models.Alert) (int64, error)
	// Get returns nil when the alert does not exist.
	Get(ctx context.Context, id int64) (*models.Alert, error)
	// Update applies a partial update and returns the affected row count.
	Update(ctx context.Context, id int64, update models.AlertUpdate, now time.Time) (int64, error)
	// Escalate moves an open alert from level `from` to `to`. It reports
	// false when the alert is no longer at `from` or is no longer open.
	Escalate(ctx context.Context, id int64, from, to int, next *time.Time, now time.Time) (bool, error)
	ListActive(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int, error)
	ListDueForEscalation(ctx context.Context, now time.Time, limit int) ([]models.Alert, error)
}

const alertColumns = `id, type, severity, status, title, message, building_id, equipment_id,
	audit_id, energy_reading_id, pq_reading_id, threshold_config, detected_value, threshold_value,
	escalation_level, notification_sent, metadata, next_escalation_at, acknowledged_by, resolved_by,
	created_at, acknowledged_at, resolved_at, updated_at`

const severityRankSQL = `CASE severity
		WHEN 'critical' THEN 4
		WHEN 'high' THEN 3
		WHEN 'medium' THEN 2
		WHEN 'low' THEN 1
		ELSE 0
	END`

// Store implements Repository over the alerts table.
type Store struct {
	db db.DataAccess
}

var _ Repository = (*Store)(nil)

func NewStore(da db.DataAccess) *Store {
	return &Store{db: da}
}

func (s *Store) FindDuplicate(ctx context.Context, alertType string, buildingID, equipmentID *int64, since time.Time) (*models.Alert, error) {
	query := `
	SELECT ` + alertColumns + `
	FROM alerts
	WHERE type = $1
		AND status = 'active'
		AND building_id IS NOT DISTINCT FROM $2
		AND equipment_id IS NOT DISTINCT FROM $3
		AND created_at >= $4
	ORDER BY created_at DESC
	LIMIT 1`

	row, err := s.db.QueryOne(ctx, query, alertType, buildingID, equipmentID, since.UTC())
	if err != nil {
		return nil, errs.Store("failed to look up duplicate alert", err)
	}
	if row == nil {
		return nil, nil
	}
	alert := alertFromRow(row)
	return &alert, nil
}

func (s *Store) Insert(ctx context.Context, a models.Alert) (int64, error) {
	query := `
	INSERT INTO alerts (
		type, severity, status, title, message, building_id, equipment_id, audit_id,
		energy_reading_id, pq_reading_id, threshold_config, detected_value, threshold_value,
		escalation_level, notification_sent, metadata, next_escalation_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19
	) RETURNING id`

	id, err := s.db.Insert(ctx, query,
		a.Type,
		a.Severity,
		a.Status,
		a.Title,
		a.Message,
		a.BuildingID,
		a.EquipmentID,
		a.AuditID,
		a.EnergyReadingID,
		a.PQReadingID,
		jsonObject(a.ThresholdConfig),
		a.DetectedValue,
		a.ThresholdValue,
		a.EscalationLevel,
		a.NotificationSent,
		jsonObject(a.Metadata),
		utcPtr(a.NextEscalationAt),
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, errs.Store("failed to insert alert", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.Alert, error) {
	row, err := s.db.QueryOne(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, errs.Store("failed to get alert", err)
	}
	if row == nil {
		return nil, nil
	}
	alert := alertFromRow(row)
	return &alert, nil
}

// Update builds the SET clause from the non-nil fields of u. Column names
// come from this function only; values are always bound.
func (s *Store) Update(ctx context.Context, id int64, u models.AlertUpdate, now time.Time) (int64, error) {
	var (
		sets []string
		args []any
	)
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if u.Status != nil {
		set("status = $%d", *u.Status)
	}
	if u.Severity != nil {
		set("severity = $%d", *u.Severity)
	}
	if u.Title != nil {
		set("title = $%d", *u.Title)
	}
	if u.Message != nil {
		set("message = $%d", *u.Message)
	}
	if u.DetectedValue != nil {
		set("detected_value = $%d", *u.DetectedValue)
	}
	if u.EscalationLevel != nil {
		set("escalation_level = GREATEST(escalation_level, $%d)", *u.EscalationLevel)
	}
	if u.NotificationSent != nil {
		set("notification_sent = $%d", *u.NotificationSent)
	}
	if len(u.Metadata) > 0 {
		set("metadata = COALESCE(metadata, '{}'::jsonb) || $%d::jsonb", u.Metadata)
	}
	if u.AcknowledgedBy != nil {
		set("acknowledged_by = $%d", *u.AcknowledgedBy)
	}
	if u.ResolvedBy != nil {
		set("resolved_by = $%d", *u.ResolvedBy)
	}
	if u.AcknowledgedAt != nil {
		set("acknowledged_at = COALESCE(acknowledged_at, $%d)", u.AcknowledgedAt.UTC())
	}
	if u.ResolvedAt != nil {
		set("resolved_at = COALESCE(resolved_at, $%d)", u.ResolvedAt.UTC())
	}
	switch {
	case u.ClearNextEscalation:
		sets = append(sets, "next_escalation_at = NULL")
	case u.NextEscalationAt != nil:
		set("next_escalation_at = $%d", u.NextEscalationAt.UTC())
	}

	if len(sets) == 0 {
		return 0, nil
	}
	set("updated_at = $%d", now.UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE alerts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	n, err := s.db.Execute(ctx, query, args...)
	if err != nil {
		return 0, errs.Store("failed to update alert", err)
	}
	return n, nil
}

func (s *Store) Escalate(ctx context.Context, id int64, from, to int, next *time.Time, now time.Time) (bool, error) {
	query := `
	UPDATE alerts
	SET status = 'escalated', escalation_level = $1, next_escalation_at = $2, updated_at = $3
	WHERE id = $4
		AND escalation_level = $5
		AND status IN ('active', 'escalated')
		AND acknowledged_at IS NULL`

	n, err := s.db.Execute(ctx, query, to, utcPtr(next), now.UTC(), id, from)
	if err != nil {
		return false, errs.Store("failed to escalate alert", err)
	}
	return n == 1, nil
}

// ListActive returns one page of active alerts, most severe first, and the
// total number of matches.
func (s *Store) ListActive(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int, error) {
	page = page.Normalize()

	where := []string{"status = 'active'"}
	var args []any
	cond := func(expr string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	if filter.BuildingID != nil {
		cond("building_id = $%d", *filter.BuildingID)
	}
	if filter.EquipmentID != nil {
		cond("equipment_id = $%d", *filter.EquipmentID)
	}
	if filter.Type != "" {
		cond("type = $%d", filter.Type)
	}
	if filter.Severity != "" {
		cond("severity = $%d", filter.Severity)
	}
	whereSQL := strings.Join(where, " AND ")

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`
	SELECT %s, COUNT(*) OVER() AS total_count
	FROM alerts
	WHERE %s
	ORDER BY %s DESC, created_at DESC
	LIMIT $%d OFFSET $%d`, alertColumns, whereSQL, severityRankSQL, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errs.Store("failed to list active alerts", err)
	}

	list := make([]models.Alert, 0, len(rows))
	for _, row := range rows {
		list = append(list, alertFromRow(row))
	}
	if len(rows) > 0 {
		return list, rows[0].Int("total_count"), nil
	}
	if page.Offset == 0 {
		return list, 0, nil
	}

	// Past the last page the window count is unavailable.
	row, err := s.db.QueryOne(ctx, `SELECT COUNT(*) AS total_count FROM alerts WHERE `+whereSQL, args[:len(args)-2]...)
	if err != nil {
		return nil, 0, errs.Store("failed to count active alerts", err)
	}
	if row == nil {
		return list, 0, nil
	}
	return list, row.Int("total_count"), nil
}

func (s *Store) ListDueForEscalation(ctx context.Context, now time.Time, limit int) ([]models.Alert, error) {
	query := `
	SELECT ` + alertColumns + `
	FROM alerts
	WHERE status IN ('active', 'escalated')
		AND acknowledged_at IS NULL
		AND next_escalation_at IS NOT NULL
		AND next_escalation_at <= $1
	ORDER BY next_escalation_at
	LIMIT $2`

	rows, err := s.db.Query(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, errs.Store("failed to list alerts due for escalation", err)
	}

	list := make([]models.Alert, 0, len(rows))
	for _, row := range rows {
		list = append(list, alertFromRow(row))
	}
	return list, nil
}

func alertFromRow(r db.Row) models.Alert {
	return models.Alert{
		ID:               r.Int64("id"),
		Type:             r.String("type"),
		Severity:         r.String("severity"),
		Status:           r.String("status"),
		Title:            r.String("title"),
		Message:          r.String("message"),
		BuildingID:       r.NullInt64("building_id"),
		EquipmentID:      r.NullInt64("equipment_id"),
		AuditID:          r.NullInt64("audit_id"),
		EnergyReadingID:  r.NullInt64("energy_reading_id"),
		PQReadingID:      r.NullInt64("pq_reading_id"),
		ThresholdConfig:  r.Map("threshold_config"),
		DetectedValue:    r.NullFloat64("detected_value"),
		ThresholdValue:   r.NullFloat64("threshold_value"),
		EscalationLevel:  r.Int("escalation_level"),
		NotificationSent: r.Bool("notification_sent"),
		Metadata:         r.Map("metadata"),
		NextEscalationAt: r.NullTime("next_escalation_at"),
		AcknowledgedBy:   r.NullString("acknowledged_by"),
		ResolvedBy:       r.NullString("resolved_by"),
		CreatedAt:        r.Time("created_at"),
		AcknowledgedAt:   r.NullTime("acknowledged_at"),
		ResolvedAt:       r.NullTime("resolved_at"),
		UpdatedAt:        r.Time("updated_at"),
	}
}

func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
