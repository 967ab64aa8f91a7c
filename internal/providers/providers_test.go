package providers

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"facility-alerting/internal/config"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msg = models.Message{Subject: "[HIGH] power_factor threshold exceeded", Body: "power_factor value 0.72 is below minimum threshold of 0.8", AlertID: 7}

func contact(channel string, conf map[string]interface{}) models.ContactPoint {
	return models.ContactPoint{Name: "on-call", Role: "on_call_engineer", Type: channel, Configuration: conf}
}

func TestEmailSend(t *testing.T) {
	var cfg config.Config
	cfg.Email.SMTPServer = "smtp.example.com"
	cfg.Email.SMTPPort = 587
	cfg.Email.Username = "alerts@example.com"
	cfg.Email.Password = "secret"
	cfg.Email.FromName = "Facility Alerts"

	e := NewEmail(cfg, logging.Discard())
	var gotAddr string
	var gotTo []string
	var gotBody string
	e.sendMail = func(addr string, _ smtp.Auth, from string, to []string, body []byte) error {
		gotAddr, gotTo, gotBody = addr, to, string(body)
		return nil
	}

	require.NoError(t, e.Send(context.Background(), msg, contact(models.ChannelEmail, map[string]interface{}{"email": "ops@example.com"})))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotBody, "From: Facility Alerts <alerts@example.com>\r\n")
	assert.Contains(t, gotBody, "Subject: [HIGH] power_factor threshold exceeded\r\n")
	assert.Contains(t, gotBody, msg.Body)
}

func TestEmailRejectsBadInput(t *testing.T) {
	e := NewEmail(config.Config{}, logging.Discard())
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	err := e.Send(context.Background(), msg, contact(models.ChannelEmail, nil))
	assert.ErrorContains(t, err, "email not set")

	err = e.Send(context.Background(), msg, contact(models.ChannelEmail, map[string]interface{}{"email": "ops"}))
	assert.ErrorContains(t, err, "invalid email address")

	err = e.Send(context.Background(), msg, contact(models.ChannelEmail, map[string]interface{}{"email": "ops@example.com"}))
	assert.ErrorContains(t, err, "missing email configuration")
}

type fakeTwilio struct {
	params []*twilioApi.CreateMessageParams
}

func (f *fakeTwilio) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	return &twilioApi.ApiV2010Message{}, nil
}

func TestSMSSend(t *testing.T) {
	var cfg config.Config
	cfg.SMS.FromNumber = "+15550000000"
	s := NewSMS(cfg, logging.Discard())
	fake := &fakeTwilio{}
	s.api = fake

	require.NoError(t, s.Send(context.Background(), msg, contact(models.ChannelSMS, map[string]interface{}{"phone_number": "+84901234567"})))
	require.Len(t, fake.params, 1)
	assert.Equal(t, "+84901234567", *fake.params[0].To)
	assert.Equal(t, "+15550000000", *fake.params[0].From)
	assert.Equal(t, msg.Subject+"\n"+msg.Body, *fake.params[0].Body)

	err := s.Send(context.Background(), msg, contact(models.ChannelSMS, map[string]interface{}{"phone_number": "0901234567"}))
	assert.ErrorContains(t, err, "invalid phone number")
	assert.Len(t, fake.params, 1)
}

type fakeBot struct {
	params []*bot.SendMessageParams
}

func (f *fakeBot) SendMessage(_ context.Context, p *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.params = append(f.params, p)
	return &tgmodels.Message{}, nil
}

func TestTelegramSend(t *testing.T) {
	var cfg config.Config
	cfg.RateLimit.TelegramRateLimiter = 5
	tg := NewTelegram(cfg, logging.Discard())
	fake := &fakeBot{}
	tg.sender = fake

	require.NoError(t, tg.Send(context.Background(), msg, contact(models.ChannelTelegram, map[string]interface{}{"chat_id": float64(123456)})))
	require.Len(t, fake.params, 1)
	assert.Equal(t, int64(123456), fake.params[0].ChatID)
	assert.Equal(t, tgmodels.ParseModeMarkdown, fake.params[0].ParseMode)
	assert.Contains(t, fake.params[0].Text, "power")

	err := tg.Send(context.Background(), msg, contact(models.ChannelTelegram, map[string]interface{}{}))
	assert.ErrorContains(t, err, "missing chat_id")
}

func TestTelegramWithoutToken(t *testing.T) {
	tg := NewTelegram(config.Config{}, logging.Discard())
	err := tg.Send(context.Background(), msg, contact(models.ChannelTelegram, map[string]interface{}{"chat_id": "42"}))
	assert.ErrorContains(t, err, "bot token is empty")
}
