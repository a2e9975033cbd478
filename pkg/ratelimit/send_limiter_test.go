package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-verify/pkg/audit"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func recordSend(t *testing.T, log *audit.MemoryLog, userID uuid.UUID, action audit.Action, at time.Time) {
	t.Helper()
	require.NoError(t, log.Append(context.Background(), audit.NewEntry(userID, "a@example.com", action, at, audit.ClientInfo{})))
}

func TestSendLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	log := audit.NewMemoryLog()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	limiter := NewSendLimiter(log, WithClock(clock.Now))
	userID := uuid.New()

	// Sends at minute 0, 20 and 40.
	for i, action := range []audit.Action{audit.ActionSent, audit.ActionResent, audit.ActionResent} {
		ok, err := limiter.CanSend(ctx, userID)
		require.NoError(t, err)
		require.True(t, ok, "send %d should be allowed", i+1)
		recordSend(t, log, userID, action, clock.Now())
		clock.Advance(20 * time.Minute)
	}

	// Minute 59: all three sends are inside the window.
	clock.Advance(-time.Minute)
	ok, err := limiter.CanSend(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok, "fourth send inside the window should be blocked")

	// Minute 60: the minute-0 entry is exactly one window old and drops out.
	clock.Advance(time.Minute)
	ok, err = limiter.CanSend(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok, "send should be allowed once the oldest entry ages out")
}

func TestSendLimiter_IgnoresOtherActions(t *testing.T) {
	ctx := context.Background()
	log := audit.NewMemoryLog()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewSendLimiter(log, WithClock(func() time.Time { return now }))
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		recordSend(t, log, userID, audit.ActionFailed, now.Add(-time.Minute))
	}
	recordSend(t, log, userID, audit.ActionVerified, now.Add(-time.Minute))

	ok, err := limiter.CanSend(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Sends from another user do not count either.
	other := uuid.New()
	for i := 0; i < 3; i++ {
		recordSend(t, log, other, audit.ActionSent, now.Add(-time.Minute))
	}
	ok, err = limiter.CanSend(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSendLimiter_Remaining(t *testing.T) {
	ctx := context.Background()
	log := audit.NewMemoryLog()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewSendLimiter(log,
		WithClock(func() time.Time { return now }),
		WithMaxSends(2),
		WithWindow(10*time.Minute),
	)
	userID := uuid.New()

	remaining, err := limiter.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	recordSend(t, log, userID, audit.ActionSent, now.Add(-5*time.Minute))
	recordSend(t, log, userID, audit.ActionSent, now.Add(-4*time.Minute))
	recordSend(t, log, userID, audit.ActionSent, now.Add(-3*time.Minute))

	remaining, err = limiter.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 10*time.Minute, limiter.Window())
}

type failingCounter struct{}

func (failingCounter) CountSince(context.Context, uuid.UUID, time.Time, ...audit.Action) (int, error) {
	return 0, errors.New("connection refused")
}

func TestSendLimiter_CounterError(t *testing.T) {
	limiter := NewSendLimiter(failingCounter{})

	ok, err := limiter.CanSend(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "count recent sends")
}
