package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-verify/pkg/audit"
	"github.com/tendant/simple-verify/pkg/config"
	"github.com/tendant/simple-verify/pkg/emailverification"
	"github.com/tendant/simple-verify/pkg/emailverification/api"
	"github.com/tendant/simple-verify/pkg/identity"
	"github.com/tendant/simple-verify/pkg/metrics"
	"github.com/tendant/simple-verify/pkg/notification"
	"github.com/tendant/simple-verify/pkg/ratelimit"
)

func TestSeedUsers(t *testing.T) {
	ctx := context.Background()
	dir := identity.NewMemoryDirectory()

	seedUsers(ctx, dir, []string{"a@example.com", "A@Example.com", "b@example.com"})

	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := dir.FindByEmail(ctx, email)
		assert.NoError(t, err, email)
	}
}

func TestNewNotifier(t *testing.T) {
	tests := []struct {
		name      string
		notifier  string
		async     int64
		wantType  any
		wantAsync bool
	}{
		{"None", "none", 16, notification.NoopNotifier{}, false},
		{"LogInline", "log", 0, &notification.NotificationManager{}, false},
		{"LogAsync", "log", 4, &notification.AsyncNotifier{}, true},
		{"Resend", "resend", 0, &notification.NotificationManager{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Verification.Notifier = tt.notifier
			cfg.Verification.AsyncLimit = tt.async
			cfg.Resend = config.ResendConfig{APIKey: "re_test", From: "noreply@example.com"}

			n, async, err := newNotifier(cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, n)
			assert.Equal(t, tt.wantAsync, async != nil)
		})
	}

	_, _, err := newNotifier(&config.Config{Verification: config.VerificationConfig{Notifier: "pigeon"}})
	assert.Error(t, err)
}

func TestSetupRoutes(t *testing.T) {
	dir := identity.NewMemoryDirectory()
	_, err := dir.Add("a@example.com")
	require.NoError(t, err)
	log := audit.NewMemoryLog()
	svc := emailverification.NewService(
		emailverification.NewMemoryTokenStore(),
		dir,
		log,
		ratelimit.NewSendLimiter(log),
	)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	r := chi.NewRouter()
	setupRoutes(r, api.NewHandler(svc), reg)

	req := httptest.NewRequest(http.MethodPost, "/api/email-verification/request", bytes.NewBufferString(`{"email":"a@example.com"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"code"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `verify_codes_issued_total{action="sent"}`)
}
