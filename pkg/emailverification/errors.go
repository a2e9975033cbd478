package emailverification

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when no account matches the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyVerified is returned when the user's email is already confirmed.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrRateLimited is returned when the send limit for the window is used up.
	ErrRateLimited = errors.New("too many verification emails sent, please try again later")

	// ErrInvalidOrExpiredToken covers a wrong, used, superseded or expired code.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired verification code")

	// ErrNotificationDeliveryFailed marks a failed send. It is logged, never returned.
	ErrNotificationDeliveryFailed = errors.New("verification notification delivery failed")

	// ErrPersistence matches any *PersistenceError via errors.Is.
	ErrPersistence = errors.New("verification storage unavailable")
)

// PersistenceError wraps a storage fault or timeout. Callers may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
