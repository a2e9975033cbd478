// Package audit records verification-related actions per user.
//
// The log is append-only: entries are never updated or deleted by this
// module. Send-rate limiting and status reporting are derived reads over it.
package audit

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Action is the kind of verification event being recorded.
type Action string

const (
	ActionSent     Action = "sent"
	ActionResent   Action = "resent"
	ActionVerified Action = "verified"
	ActionFailed   Action = "failed"
)

// SendActions are the actions that count against the send rate limit.
var SendActions = []Action{ActionSent, ActionResent}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionSent, ActionResent, ActionVerified, ActionFailed:
		return true
	}
	return false
}

// ErrInvalidEntry is returned when an entry is missing required fields.
var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry is a single audit record. Email is denormalized so entries remain
// searchable after the owning user is gone. UserID is uuid.Nil for attempts
// made against an address with no account.
type Entry struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// NewEntry builds an entry stamped at the given time. The ID is a ULID so
// entries sort chronologically by ID as well as by timestamp.
func NewEntry(userID uuid.UUID, email string, action Action, at time.Time, info ClientInfo) *Entry {
	return &Entry{
		ID:        ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		UserID:    userID,
		Email:     email,
		Action:    action,
		Timestamp: at.UTC(),
		ClientIP:  info.IP,
		UserAgent: info.UserAgent,
	}
}

func validateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEntry)
	}
	return nil
}
