package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// AlertNotification records one delivery attempt for an escalation level.
type AlertNotification struct {
	ID              uuid.UUID `json:"id"`
	AlertID         int64     `json:"alert_id"`
	EscalationLevel int       `json:"escalation_level"`
	Channel         string    `json:"channel"`
	Recipient       string    `json:"recipient"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Message is the rendered content handed to a provider.
type Message struct {
	Subject string
	Body    string
	AlertID int64
	Level   int
}
