package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"facility-alerting/internal/config"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
	"facility-alerting/internal/utils"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMS struct {
	api        messageCreator
	fromNumber string
	logger     *logging.Logger
}

func NewSMS(cfg config.Config, logger *logging.Logger) *SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.SMS.AccountSID,
		Password: cfg.SMS.AuthToken,
	})
	return &SMS{api: client.Api, fromNumber: cfg.SMS.FromNumber, logger: logger}
}

func (s *SMS) Send(ctx context.Context, msg models.Message, cp models.ContactPoint) error {
	to := configString(cp, "phone_number")
	if to == "" {
		return fmt.Errorf("phone_number not set in configuration for contact point %s", contactLabel(cp))
	}
	if !strings.HasPrefix(to, "+") {
		return fmt.Errorf("invalid phone number: %s", to)
	}
	if s.fromNumber == "" {
		return fmt.Errorf("missing SMS configuration: FromNumber is empty")
	}

	body := fmt.Sprintf("%s\n%s", msg.Subject, msg.Body)
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.fromNumber)
	params.SetBody(body)

	return utils.Retry(ctx, s.logger, sendAttempts, retryDelay, func() error {
		if _, err := s.api.CreateMessage(params); err != nil {
			return fmt.Errorf("failed to send SMS to %s: %w", to, err)
		}
		return nil
	})
}
