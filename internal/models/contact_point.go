package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelTelegram  = "telegram"
	ChannelWebsocket = "websocket"
)

// ContactPoint is a delivery address for a recipient role.
type ContactPoint struct {
	ID            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Role          string                 `json:"role"`
	Type          string                 `json:"type"`
	Configuration map[string]interface{} `json:"configuration"`
	BuildingID    *int64                 `json:"building_id,omitempty"`
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Address returns the channel-specific destination for display and logging.
func (cp ContactPoint) Address() string {
	var key string
	switch cp.Type {
	case ChannelEmail:
		key = "email"
	case ChannelSMS:
		key = "phone_number"
	case ChannelTelegram:
		key = "chat_id"
	default:
		return cp.Name
	}
	if v, ok := cp.Configuration[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
