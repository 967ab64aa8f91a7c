package providers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"facility-alerting/internal/config"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
	"facility-alerting/internal/utils"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Email struct {
	server   string
	port     int
	username string
	password string
	fromName string
	logger   *logging.Logger
	sendMail sendMailFunc
}

func NewEmail(cfg config.Config, logger *logging.Logger) *Email {
	return &Email{
		server:   cfg.Email.SMTPServer,
		port:     cfg.Email.SMTPPort,
		username: cfg.Email.Username,
		password: cfg.Email.Password,
		fromName: cfg.Email.FromName,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

func (e *Email) Send(ctx context.Context, msg models.Message, cp models.ContactPoint) error {
	to := configString(cp, "email")
	if to == "" {
		return fmt.Errorf("email not set in configuration for contact point %s", contactLabel(cp))
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}
	if e.server == "" || e.port == 0 || e.username == "" || e.password == "" {
		return fmt.Errorf("missing email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}

	from := e.username
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.username)
	}
	body := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", from, to, msg.Subject, msg.Body))
	auth := smtp.PlainAuth("", e.username, e.password, e.server)
	addr := fmt.Sprintf("%s:%d", e.server, e.port)

	return utils.Retry(ctx, e.logger, sendAttempts, retryDelay, func() error {
		if err := e.sendMail(addr, auth, e.username, []string{to}, body); err != nil {
			return fmt.Errorf("failed to send email to %s: %w", to, err)
		}
		return nil
	})
}
