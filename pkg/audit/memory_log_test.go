package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog_Append(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		e := NewEntry(userID, "a@example.com", ActionSent, now, ClientInfo{IP: "10.0.0.1", UserAgent: "curl/8.0"})
		require.NoError(t, log.Append(ctx, e))
		assert.Equal(t, 1, log.Len())
	})

	t.Run("UnknownActionRejected", func(t *testing.T) {
		e := NewEntry(userID, "a@example.com", Action("deleted"), now, ClientInfo{})
		err := log.Append(ctx, e)
		assert.ErrorIs(t, err, ErrInvalidEntry)
	})

	t.Run("NilEntryRejected", func(t *testing.T) {
		assert.ErrorIs(t, log.Append(ctx, nil), ErrInvalidEntry)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		other := uuid.New()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = log.Append(ctx, NewEntry(other, "b@example.com", ActionFailed, now, ClientInfo{}))
			}()
		}
		wg.Wait()

		count, err := log.CountSince(ctx, other, now.Add(-time.Minute), ActionFailed)
		require.NoError(t, err)
		assert.Equal(t, 50, count)
	})
}

func TestMemoryLog_CountSince(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, e := range []*Entry{
		NewEntry(userID, "a@example.com", ActionSent, base, ClientInfo{}),
		NewEntry(userID, "a@example.com", ActionResent, base.Add(20*time.Minute), ClientInfo{}),
		NewEntry(userID, "a@example.com", ActionFailed, base.Add(25*time.Minute), ClientInfo{}),
		NewEntry(uuid.New(), "z@example.com", ActionSent, base.Add(30*time.Minute), ClientInfo{}),
	} {
		require.NoError(t, log.Append(ctx, e))
	}

	tests := []struct {
		name    string
		since   time.Time
		actions []Action
		want    int
	}{
		{"AllSends", base.Add(-time.Second), SendActions, 2},
		{"BoundaryIsExclusive", base, SendActions, 1},
		{"FailedOnly", base.Add(-time.Second), []Action{ActionFailed}, 1},
		{"NoActions", base.Add(-time.Second), nil, 0},
		{"AfterEverything", base.Add(time.Hour), SendActions, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := log.CountSince(ctx, userID, tt.since, tt.actions...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryLog_Recent(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	actions := []Action{ActionSent, ActionFailed, ActionResent, ActionVerified}
	for i, a := range actions {
		require.NoError(t, log.Append(ctx, NewEntry(userID, "a@example.com", a, base.Add(time.Duration(i)*time.Minute), ClientInfo{})))
	}

	t.Run("NewestFirst", func(t *testing.T) {
		entries, err := log.Recent(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, ActionVerified, entries[0].Action)
		assert.Equal(t, ActionSent, entries[3].Action)
	})

	t.Run("Limit", func(t *testing.T) {
		entries, err := log.Recent(ctx, userID, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, ActionResent, entries[1].Action)
	})

	t.Run("ZeroLimit", func(t *testing.T) {
		entries, err := log.Recent(ctx, userID, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		entries, err := log.Recent(ctx, uuid.New(), 5)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestNewEntry_IDsSortByTime(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := NewEntry(uuid.New(), "a@example.com", ActionSent, base, ClientInfo{})
	second := NewEntry(uuid.New(), "a@example.com", ActionSent, base.Add(time.Second), ClientInfo{})
	assert.Less(t, first.ID, second.ID)
}

func TestClientInfoMiddleware(t *testing.T) {
	var got ClientInfo
	h := ClientInfoMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientInfoFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/request", nil)
	req.RemoteAddr = "192.0.2.10:52100"
	req.Header.Set("User-Agent", "verify-test/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.10", got.IP)
	assert.Equal(t, "verify-test/1.0", got.UserAgent)
	assert.Equal(t, ClientInfo{}, ClientInfoFromContext(context.Background()))
}
