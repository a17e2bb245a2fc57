// Package mailer delivers the exam result emails.
package mailer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends one HTML message to one recipient.
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, htmlBody string) error
}

// SendGridConfig holds the credentials and sender identity for SendGrid
// delivery.
type SendGridConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
}

// SendGridMailer implements Mailer using the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	cfg    SendGridConfig
	logger zerolog.Logger
}

// NewSendGridMailer constructs a SendGrid-backed mailer.
func NewSendGridMailer(cfg SendGridConfig, logger zerolog.Logger) (*SendGridMailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger.With().Str("component", "sendgrid_mailer").Logger(),
	}, nil
}

// Send delivers the message and fails on any non-2xx response.
func (m *SendGridMailer) Send(ctx context.Context, toName, toEmail, subject, htmlBody string) error {
	if toEmail == "" {
		return fmt.Errorf("recipient email is required")
	}

	from := mail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, "", htmlBody)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}

	m.logger.Info().Str("to", toEmail).Str("subject", subject).Msg("email delivered")

	return nil
}

// LogMailer is a development provider that only logs messages.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer constructs a logging mailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "log_mailer").Logger()}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(ctx context.Context, toName, toEmail, subject, htmlBody string) error {
	m.logger.Info().Str("to", toEmail).Str("subject", subject).Int("body_bytes", len(htmlBody)).Msg("email suppressed in development")
	return nil
}
