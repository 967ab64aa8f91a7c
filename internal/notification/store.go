package notification

import (
	"context"

	"facility-alerting/internal/db"
	"facility-alerting/internal/errs"
	"facility-alerting/internal/models"

	"github.com/google/uuid"
)

// Directory resolves escalation roles to deliverable contact points.
type Directory interface {
	// ContactsFor returns active contact points holding one of roles over one
	// of channels, scoped to the building or global.
	ContactsFor(ctx context.Context, roles, channels []string, buildingID *int64) ([]models.ContactPoint, error)
}

// DeliveryLog records each delivery attempt.
type DeliveryLog interface {
	Record(ctx context.Context, n models.AlertNotification) error
}

// Store backs Directory with contact_points and DeliveryLog with
// alert_notifications.
type Store struct {
	db db.DataAccess
}

var (
	_ Directory   = (*Store)(nil)
	_ DeliveryLog = (*Store)(nil)
)

func NewStore(da db.DataAccess) *Store {
	return &Store{db: da}
}

func (s *Store) ContactsFor(ctx context.Context, roles, channels []string, buildingID *int64) ([]models.ContactPoint, error) {
	if len(roles) == 0 || len(channels) == 0 {
		return nil, nil
	}

	query := `
	SELECT id, name, role, type, configuration, building_id, status, created_at, updated_at
	FROM contact_points
	WHERE status = 'active'
	  AND role = ANY($1)
	  AND type = ANY($2)
	  AND (building_id IS NULL OR building_id = $3)
	ORDER BY role, type, name`

	rows, err := s.db.Query(ctx, query, roles, channels, buildingID)
	if err != nil {
		return nil, errs.Store("failed to load contact points", err)
	}

	cps := make([]models.ContactPoint, 0, len(rows))
	for _, r := range rows {
		cps = append(cps, models.ContactPoint{
			ID:            r.UUID("id"),
			Name:          r.String("name"),
			Role:          r.String("role"),
			Type:          r.String("type"),
			Configuration: r.Map("configuration"),
			BuildingID:    r.NullInt64("building_id"),
			Status:        r.String("status"),
			CreatedAt:     r.Time("created_at"),
			UpdatedAt:     r.Time("updated_at"),
		})
	}
	return cps, nil
}

func (s *Store) Record(ctx context.Context, n models.AlertNotification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `
	INSERT INTO alert_notifications (
		id, alert_id, escalation_level, channel, recipient, status, error, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var errText *string
	if n.Error != "" {
		errText = &n.Error
	}
	_, err := s.db.Execute(ctx, query,
		n.ID,
		n.AlertID,
		n.EscalationLevel,
		n.Channel,
		n.Recipient,
		n.Status,
		errText,
		n.CreatedAt.UTC(),
	)
	return errs.Store("failed to record notification", err)
}
