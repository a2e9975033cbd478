package notification

import "context"

// Kind identifies a notification and selects its template.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindWelcome           Kind = "welcome"
)

// Notifier delivers a notification of the given kind to address. Payload
// values are substituted into the kind's template.
type Notifier interface {
	Send(ctx context.Context, address string, kind Kind, payload map[string]string) error
}

// Message is a rendered email ready for a Transport.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Transport hands a rendered message to a delivery backend.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// NoopNotifier discards every notification.
type NoopNotifier struct{}

func (NoopNotifier) Send(context.Context, string, Kind, map[string]string) error {
	return nil
}
