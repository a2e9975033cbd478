// Package ratelimit decides whether another verification code may be sent.
//
// The limit is a trailing sliding window evaluated at call time over the
// audit log. There is no counter to reset: the count is derived from the
// sent/resent entries already recorded for the user. Callers hold the user's
// Locker from CanSend until the send is recorded.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-verify/pkg/audit"
)

const (
	DefaultWindow   = time.Hour
	DefaultMaxSends = 3
)

// Counter is the read side of the audit log used by SendLimiter.
type Counter interface {
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time, actions ...audit.Action) (int, error)
}

// SendLimiter allows at most maxSends sends per user within window.
type SendLimiter struct {
	counter  Counter
	window   time.Duration
	maxSends int
	now      func() time.Time
}

// Option configures a SendLimiter.
type Option func(*SendLimiter)

// WithWindow sets the trailing window length.
func WithWindow(window time.Duration) Option {
	return func(l *SendLimiter) {
		l.window = window
	}
}

// WithMaxSends sets how many sends are allowed per window.
func WithMaxSends(n int) Option {
	return func(l *SendLimiter) {
		l.maxSends = n
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *SendLimiter) {
		l.now = now
	}
}

// NewSendLimiter creates a limiter reading from counter.
func NewSendLimiter(counter Counter, opts ...Option) *SendLimiter {
	l := &SendLimiter{
		counter:  counter,
		window:   DefaultWindow,
		maxSends: DefaultMaxSends,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanSend reports whether the user has fewer than maxSends sends in the
// trailing window. It has no side effects.
func (l *SendLimiter) CanSend(ctx context.Context, userID uuid.UUID) (bool, error) {
	count, err := l.sentInWindow(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < l.maxSends, nil
}

// Remaining returns how many more sends the user may make right now.
func (l *SendLimiter) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := l.sentInWindow(ctx, userID)
	if err != nil {
		return 0, err
	}
	return max(0, l.maxSends-count), nil
}

// Window returns the configured window length.
func (l *SendLimiter) Window() time.Duration {
	return l.window
}

func (l *SendLimiter) sentInWindow(ctx context.Context, userID uuid.UUID) (int, error) {
	since := l.now().Add(-l.window)
	count, err := l.counter.CountSince(ctx, userID, since, audit.SendActions...)
	if err != nil {
		return 0, fmt.Errorf("count recent sends: %w", err)
	}
	return count, nil
}
