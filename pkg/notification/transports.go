package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// ResendTransport delivers messages through the Resend API.
type ResendTransport struct {
	client *resend.Client
	from   string
}

func NewResendTransport(apiKey, from string) *ResendTransport {
	return &ResendTransport{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (t *ResendTransport) Deliver(ctx context.Context, m Message) error {
	params := &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{m.To},
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
	}
	sent, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	slog.Info("Email sent", "provider", "resend", "message_id", sent.Id)
	return nil
}

// LogTransport logs messages instead of sending them. For local development.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Deliver(ctx context.Context, m Message) error {
	t.logger.InfoContext(ctx, "Email (local dev)", "to", m.To, "subject", m.Subject, "body", m.Text)
	return nil
}
