package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// SMTPTransport delivers messages over SMTP.
type SMTPTransport struct {
	config SMTPConfig
	client *mail.Client
}

func NewSMTPTransport(config SMTPConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}

	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if config.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: config.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		slog.Info("Using NoTLS policy", "host", config.Host)
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &SMTPTransport{config: config, client: client}, nil
}

func (t *SMTPTransport) Deliver(ctx context.Context, m Message) error {
	msg := mail.NewMsg()
	if err := msg.From(t.config.From); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(m.Subject)

	switch {
	case m.Text != "" && m.HTML != "":
		msg.SetBodyString(mail.TypeTextPlain, m.Text)
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	case m.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	default:
		msg.SetBodyString(mail.TypeTextPlain, m.Text)
	}

	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	slog.Info("Email sent", "host", t.config.Host, "port", t.config.Port)
	return nil
}
