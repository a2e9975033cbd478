package notification

import (
	"context"
	"maps"
	"sync"
)

// SentNotification is one call recorded by MockNotifier.
type SentNotification struct {
	Address string
	Kind    Kind
	Payload map[string]string
}

// MockNotifier records every Send. When Err is set, Send records the call
// and returns Err.
type MockNotifier struct {
	mu   sync.Mutex
	sent []SentNotification
	Err  error
}

func (m *MockNotifier) Send(_ context.Context, address string, kind Kind, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentNotification{Address: address, Kind: kind, Payload: maps.Clone(payload)})
	return m.Err
}

// Sent returns a copy of the recorded calls.
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentNotification(nil), m.sent...)
}

// Last returns the most recent call, if any.
func (m *MockNotifier) Last() (SentNotification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentNotification{}, false
	}
	return m.sent[len(m.sent)-1], true
}
