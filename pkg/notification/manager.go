package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

var (
	ErrNoTemplate = errors.New("no template registered for notification kind")
	ErrNoAddress  = errors.New("notification requires a recipient address")
)

// Template is the source of one notification kind. Text and HTML are
// optional but at least one must be set.
type Template struct {
	Subject string
	Text    string
	HTML    string
}

type compiledTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// NotificationManager renders templates and passes the result to a
// Transport. It implements Notifier.
type NotificationManager struct {
	transport Transport

	mu        sync.RWMutex
	templates map[Kind]compiledTemplate
}

// NewNotificationManager creates a manager delivering through transport.
func NewNotificationManager(transport Transport, opts ...ManagerOption) (*NotificationManager, error) {
	nm := &NotificationManager{
		transport: transport,
		templates: make(map[Kind]compiledTemplate),
	}
	for _, opt := range opts {
		if err := opt(nm); err != nil {
			return nil, err
		}
	}
	return nm, nil
}

// RegisterTemplate parses tmpl and stores it for kind, replacing any
// earlier registration.
func (nm *NotificationManager) RegisterTemplate(kind Kind, tmpl Template) error {
	if kind == "" {
		return fmt.Errorf("invalid input: notification kind cannot be empty")
	}
	if tmpl.Text == "" && tmpl.HTML == "" {
		return fmt.Errorf("invalid input: template for %s needs a text or html body", kind)
	}

	ct := compiledTemplate{subject: tmpl.Subject}
	if tmpl.Text != "" {
		t, err := texttemplate.New(string(kind) + ".txt").Option("missingkey=error").Parse(tmpl.Text)
		if err != nil {
			return fmt.Errorf("parse text template for %s: %w", kind, err)
		}
		ct.text = t
	}
	if tmpl.HTML != "" {
		t, err := htmltemplate.New(string(kind) + ".html").Option("missingkey=error").Parse(tmpl.HTML)
		if err != nil {
			return fmt.Errorf("parse html template for %s: %w", kind, err)
		}
		ct.html = t
	}

	nm.mu.Lock()
	nm.templates[kind] = ct
	nm.mu.Unlock()
	return nil
}

// Render builds the message for kind without sending it.
func (nm *NotificationManager) Render(address string, kind Kind, payload map[string]string) (Message, error) {
	if address == "" {
		return Message{}, ErrNoAddress
	}

	nm.mu.RLock()
	ct, ok := nm.templates[kind]
	nm.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNoTemplate, kind)
	}

	msg := Message{To: address, Subject: ct.subject}
	if ct.text != nil {
		var buf bytes.Buffer
		if err := ct.text.Execute(&buf, payload); err != nil {
			return Message{}, fmt.Errorf("render text for %s: %w", kind, err)
		}
		msg.Text = buf.String()
	}
	if ct.html != nil {
		var buf bytes.Buffer
		if err := ct.html.Execute(&buf, payload); err != nil {
			return Message{}, fmt.Errorf("render html for %s: %w", kind, err)
		}
		msg.HTML = buf.String()
	}
	return msg, nil
}

// Send renders the kind's template and delivers it.
func (nm *NotificationManager) Send(ctx context.Context, address string, kind Kind, payload map[string]string) error {
	msg, err := nm.Render(address, kind, payload)
	if err != nil {
		return err
	}
	if err := nm.transport.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", kind, address, err)
	}
	return nil
}
