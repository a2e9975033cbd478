package notification

import (
	"embed"
	"fmt"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) (string, error) {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", filename, err)
	}
	return string(content), nil
}

// ManagerOption configures a NotificationManager.
type ManagerOption func(*NotificationManager) error

// WithTemplate registers a custom template for kind.
func WithTemplate(kind Kind, tmpl Template) ManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterTemplate(kind, tmpl)
	}
}

// WithEmailVerificationTemplate registers the built-in verification code email.
func WithEmailVerificationTemplate() ManagerOption {
	return embeddedTemplate(KindEmailVerification, "Your verification code", "templates/email/email_verification")
}

// WithWelcomeTemplate registers the built-in welcome email.
func WithWelcomeTemplate() ManagerOption {
	return embeddedTemplate(KindWelcome, "Your email address is verified", "templates/email/welcome")
}

// WithDefaultTemplates registers all built-in templates.
func WithDefaultTemplates() ManagerOption {
	return func(nm *NotificationManager) error {
		for _, opt := range []ManagerOption{
			WithEmailVerificationTemplate(),
			WithWelcomeTemplate(),
		} {
			if err := opt(nm); err != nil {
				return err
			}
		}
		return nil
	}
}

func embeddedTemplate(kind Kind, subject, base string) ManagerOption {
	return func(nm *NotificationManager) error {
		text, err := loadTemplate(base + ".txt")
		if err != nil {
			return err
		}
		html, err := loadTemplate(base + ".html")
		if err != nil {
			return err
		}
		return nm.RegisterTemplate(kind, Template{Subject: subject, Text: text, HTML: html})
	}
}
