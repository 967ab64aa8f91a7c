package models

import "time"

// AlertThreshold is a configured min/max rule for a named parameter.
// Nil building and equipment ids make the threshold global.
type AlertThreshold struct {
	ID                 int64     `json:"id"`
	BuildingID         *int64    `json:"building_id,omitempty"`
	EquipmentID        *int64    `json:"equipment_id,omitempty"`
	Parameter          string    `json:"parameter"`
	MinValue           *float64  `json:"min_value,omitempty"`
	MaxValue           *float64  `json:"max_value,omitempty"`
	Severity           string    `json:"severity"`
	Enabled            bool      `json:"enabled"`
	EscalationMinutes  int       `json:"escalation_minutes"`
	NotificationEmails []string  `json:"notification_emails,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Config is the serialized form stored on alerts raised by this threshold.
func (t AlertThreshold) Config() map[string]any {
	cfg := map[string]any{
		"threshold_id":       t.ID,
		"parameter":          t.Parameter,
		"severity":           t.Severity,
		"escalation_minutes": t.EscalationMinutes,
	}
	if t.MinValue != nil {
		cfg["min_value"] = *t.MinValue
	}
	if t.MaxValue != nil {
		cfg["max_value"] = *t.MaxValue
	}
	if len(t.NotificationEmails) > 0 {
		cfg["notification_emails"] = t.NotificationEmails
	}
	return cfg
}
