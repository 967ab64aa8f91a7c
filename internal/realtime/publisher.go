// Package realtime pushes alert events to live subscribers.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventNewAlert           = "new_alert"
	EventAlertEscalated     = "alert_escalated"
	EventAlertStatusChanged = "alert_status_changed"
	EventJobUpdated         = "job_updated"
	EventAlertNotification  = "alert_notification"

	SystemChannel = "system"
)

// Publisher delivers an event to every subscriber of channel. Delivery is
// fire-and-forget; implementations log failures instead of returning them.
type Publisher interface {
	EmitToBuilding(ctx context.Context, channel, event string, payload any)
}

// ChannelFor returns the channel for a building, or the system channel when
// the building is unknown.
func ChannelFor(buildingID *int64) string {
	if buildingID == nil {
		return SystemChannel
	}
	return fmt.Sprintf("building:%d", *buildingID)
}

// Envelope is the wire form of an emitted event.
type Envelope struct {
	ID        uuid.UUID `json:"id"`
	Channel   string    `json:"channel"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

func NewEnvelope(channel, event string, payload any) Envelope {
	return Envelope{
		ID:        uuid.New(),
		Channel:   channel,
		Event:     event,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
}

// Fanout emits to each publisher in turn.
type Fanout []Publisher

func (f Fanout) EmitToBuilding(ctx context.Context, channel, event string, payload any) {
	for _, p := range f {
		p.EmitToBuilding(ctx, channel, event, payload)
	}
}

type Noop struct{}

func (Noop) EmitToBuilding(context.Context, string, string, any) {}
