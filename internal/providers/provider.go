// Package providers delivers rendered alert messages over external channels.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"facility-alerting/internal/models"
)

const (
	sendAttempts = 3
	retryDelay   = time.Second
)

// Provider sends one message to one contact point.
type Provider interface {
	Send(ctx context.Context, msg models.Message, cp models.ContactPoint) error
}

// configString reads a string setting from a contact point configuration.
func configString(cp models.ContactPoint, key string) string {
	v, ok := cp.Configuration[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func contactLabel(cp models.ContactPoint) string {
	if cp.Name != "" {
		return cp.Name
	}
	return cp.ID.String()
}
