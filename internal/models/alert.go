package models

import (
	"slices"
	"time"
)

const (
	AlertTypeThresholdExceeded   = "threshold_exceeded"
	AlertTypePowerQuality        = "power_quality"
	AlertTypeEquipmentFailure    = "equipment_failure"
	AlertTypeMaintenanceDue      = "maintenance_due"
	AlertTypeEnergyAnomaly       = "energy_anomaly"
	AlertTypeComplianceViolation = "compliance_violation"
)

var AlertTypes = []string{
	AlertTypeThresholdExceeded,
	AlertTypePowerQuality,
	AlertTypeEquipmentFailure,
	AlertTypeMaintenanceDue,
	AlertTypeEnergyAnomaly,
	AlertTypeComplianceViolation,
}

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusEscalated    = "escalated"
	AlertStatusResolved     = "resolved"
)

// SeverityRank orders severities; unknown values rank lowest.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func ValidSeverity(severity string) bool {
	return SeverityRank(severity) > 0
}

func ValidAlertType(t string) bool {
	return slices.Contains(AlertTypes, t)
}

// Alert is a detected condition requiring attention.
type Alert struct {
	ID               int64          `json:"id"`
	Type             string         `json:"type"`
	Severity         string         `json:"severity"`
	Status           string         `json:"status"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	BuildingID       *int64         `json:"building_id,omitempty"`
	EquipmentID      *int64         `json:"equipment_id,omitempty"`
	AuditID          *int64         `json:"audit_id,omitempty"`
	EnergyReadingID  *int64         `json:"energy_reading_id,omitempty"`
	PQReadingID      *int64         `json:"pq_reading_id,omitempty"`
	ThresholdConfig  map[string]any `json:"threshold_config,omitempty"`
	DetectedValue    *float64       `json:"detected_value,omitempty"`
	ThresholdValue   *float64       `json:"threshold_value,omitempty"`
	EscalationLevel  int            `json:"escalation_level"`
	NotificationSent bool           `json:"notification_sent"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	NextEscalationAt *time.Time     `json:"next_escalation_at,omitempty"`
	AcknowledgedBy   *string        `json:"acknowledged_by,omitempty"`
	ResolvedBy       *string        `json:"resolved_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	AcknowledgedAt   *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Escalatable reports whether the alert can still move up a level.
func (a Alert) Escalatable() bool {
	return (a.Status == AlertStatusActive || a.Status == AlertStatusEscalated) && a.AcknowledgedAt == nil
}

// AlertUpdate is a partial update; nil fields are left unchanged.
type AlertUpdate struct {
	Status              *string        `json:"status,omitempty"`
	Severity            *string        `json:"severity,omitempty"`
	Title               *string        `json:"title,omitempty"`
	Message             *string        `json:"message,omitempty"`
	DetectedValue       *float64       `json:"detected_value,omitempty"`
	EscalationLevel     *int           `json:"escalation_level,omitempty"`
	NotificationSent    *bool          `json:"notification_sent,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	AcknowledgedBy      *string        `json:"acknowledged_by,omitempty"`
	ResolvedBy          *string        `json:"resolved_by,omitempty"`
	AcknowledgedAt      *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt          *time.Time     `json:"resolved_at,omitempty"`
	NextEscalationAt    *time.Time     `json:"-"`
	ClearNextEscalation bool           `json:"-"`
}

func (u AlertUpdate) Empty() bool {
	return u.Status == nil && u.Severity == nil && u.Title == nil && u.Message == nil &&
		u.DetectedValue == nil && u.EscalationLevel == nil && u.NotificationSent == nil &&
		len(u.Metadata) == 0 && u.AcknowledgedBy == nil && u.ResolvedBy == nil &&
		u.AcknowledgedAt == nil && u.ResolvedAt == nil && u.NextEscalationAt == nil &&
		!u.ClearNextEscalation
}

type AlertFilter struct {
	BuildingID  *int64 `form:"building_id"`
	EquipmentID *int64 `form:"equipment_id"`
	Type        string `form:"type"`
	Severity    string `form:"severity"`
}

type Pagination struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Normalize clamps the page to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
