package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-verify/pkg/audit"
	"github.com/tendant/simple-verify/pkg/emailverification"
	"github.com/tendant/simple-verify/pkg/identity"
	"github.com/tendant/simple-verify/pkg/ratelimit"
)

type stubService struct {
	requestErr error
	verifyErr  error
	statusErr  error

	gotEmail  string
	gotResend bool
	gotCode   string
	gotClient audit.ClientInfo
}

func (s *stubService) RequestCode(ctx context.Context, email string, isResend bool) (*emailverification.RequestResult, error) {
	s.gotEmail, s.gotResend = email, isResend
	s.gotClient = audit.ClientInfoFromContext(ctx)
	if s.requestErr != nil {
		return nil, s.requestErr
	}
	return &emailverification.RequestResult{Code: "042517"}, nil
}

func (s *stubService) VerifyCode(_ context.Context, email, code string) (*emailverification.VerifyResult, error) {
	s.gotEmail, s.gotCode = email, code
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &emailverification.VerifyResult{Verified: true}, nil
}

func (s *stubService) GetStatus(_ context.Context, email string) (*emailverification.StatusResult, error) {
	s.gotEmail = email
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &emailverification.StatusResult{
		Email:    email,
		Verified: false,
		RecentActions: []audit.Entry{
			{ID: "b", Action: audit.ActionFailed, Timestamp: at.Add(time.Minute)},
			{ID: "a", Action: audit.ActionSent, Timestamp: at},
		},
		RemainingSends: 2,
	}, nil
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	req.RemoteAddr = "203.0.113.5:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestCode(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"Success", RequestCodeRequest{Email: "a@example.com"}, nil, http.StatusOK, msgCodeSent},
		{"InvalidEmail", RequestCodeRequest{Email: "not-an-email"}, nil, http.StatusBadRequest, "A valid email address is required"},
		{"UserNotFound", RequestCodeRequest{Email: "a@example.com"}, emailverification.ErrUserNotFound, http.StatusNotFound, msgUserNotFound},
		{"AlreadyVerified", RequestCodeRequest{Email: "a@example.com"}, emailverification.ErrAlreadyVerified, http.StatusConflict, msgAlreadyVerified},
		{"RateLimited", RequestCodeRequest{Email: "a@example.com"}, emailverification.ErrRateLimited, http.StatusTooManyRequests, msgRateLimited},
		{"StorageDown", RequestCodeRequest{Email: "a@example.com"}, &emailverification.PersistenceError{Op: "issue token", Err: errors.New("timeout")}, http.StatusServiceUnavailable, msgServiceUnavailable},
		{"Unexpected", RequestCodeRequest{Email: "a@example.com"}, errors.New("boom"), http.StatusInternalServerError, msgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{requestErr: tt.err}
			rec := doJSON(t, NewHandler(svc).Routes(), http.MethodPost, "/request", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMsg, resp["message"])
			assert.Equal(t, tt.wantStatus == http.StatusOK, resp["success"])
		})
	}
}

func TestRequestCode_PassesResendAndClientInfo(t *testing.T) {
	svc := &stubService{}
	rec := doJSON(t, NewHandler(svc).Routes(), http.MethodPost, "/request", RequestCodeRequest{Email: "a@example.com", Resend: true})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, svc.gotResend)
	assert.Equal(t, "203.0.113.5", svc.gotClient.IP)
	assert.Equal(t, "handler-test", svc.gotClient.UserAgent)

	var resp RequestCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "042517", resp.Code)
}

func TestRequestCode_MalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/request", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	NewHandler(&stubService{}).Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyCode(t *testing.T) {
	invalid := emailverification.ErrInvalidOrExpiredToken
	tests := []struct {
		name        string
		body        VerifyCodeRequest
		err         error
		wantStatus  int
		wantService bool
	}{
		{"Success", VerifyCodeRequest{Email: "a@example.com", Code: "042517"}, nil, http.StatusOK, true},
		{"NonNumericCode", VerifyCodeRequest{Email: "a@example.com", Code: "abcdef"}, invalid, http.StatusBadRequest, true},
		{"MissingCode", VerifyCodeRequest{Email: "a@example.com"}, invalid, http.StatusBadRequest, true},
		{"CodeTooLong", VerifyCodeRequest{Email: "a@example.com", Code: "12345678901"}, invalid, http.StatusBadRequest, true},
		{"InvalidEmail", VerifyCodeRequest{Email: "not-an-email", Code: "042517"}, nil, http.StatusBadRequest, false},
		{"InvalidEmailAndCode", VerifyCodeRequest{Email: "", Code: "x"}, nil, http.StatusBadRequest, false},
		{"InvalidCode", VerifyCodeRequest{Email: "a@example.com", Code: "000000"}, invalid, http.StatusBadRequest, true},
		{"AlreadyVerified", VerifyCodeRequest{Email: "a@example.com", Code: "042517"}, emailverification.ErrAlreadyVerified, http.StatusConflict, true},
		{"UserNotFound", VerifyCodeRequest{Email: "a@example.com", Code: "042517"}, emailverification.ErrUserNotFound, http.StatusNotFound, true},
		{"Unavailable", VerifyCodeRequest{Email: "a@example.com", Code: "042517"}, &emailverification.PersistenceError{Op: "consume token", Err: errors.New("timeout")}, http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{verifyErr: tt.err}
			rec := doJSON(t, NewHandler(svc).Routes(), http.MethodPost, "/verify", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantService {
				assert.Equal(t, tt.body.Code, svc.gotCode)
			} else {
				assert.Empty(t, svc.gotEmail, "service must not be called")
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body, "verified")
			assert.Equal(t, tt.wantStatus == http.StatusOK, body["verified"])
			assert.Equal(t, tt.wantStatus == http.StatusOK, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestVerifyCode_MalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	NewHandler(&stubService{}).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp VerifyCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Verified)
	assert.Equal(t, msgInvalidBody, resp.Message)
}

func TestVerifyCode_MalformedCodeIsAudited(t *testing.T) {
	ctx := context.Background()
	directory := identity.NewMemoryDirectory()
	u, err := directory.Add("a@example.com")
	require.NoError(t, err)
	log := audit.NewMemoryLog()
	svc := emailverification.NewService(emailverification.NewMemoryTokenStore(), directory, log, ratelimit.NewSendLimiter(log))
	h := NewHandler(svc).Routes()

	for _, code := range []string{"abcdef", "", "12"} {
		rec := doJSON(t, h, http.MethodPost, "/verify", VerifyCodeRequest{Email: "a@example.com", Code: code})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "code %q", code)
	}

	entries, err := log.Recent(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, audit.ActionFailed, e.Action)
		assert.Equal(t, "203.0.113.5", e.ClientIP)
	}

	user, err := directory.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, user.EmailConfirmed)
}

func TestGetStatus(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := &stubService{}
		rec := doJSON(t, NewHandler(svc).Routes(), http.MethodGet, "/status?email=a@example.com", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "a@example.com", resp.Email)
		assert.False(t, resp.Verified)
		assert.Equal(t, 2, resp.RemainingSends)
		require.Len(t, resp.RecentActions, 2)
		assert.Equal(t, "failed", resp.RecentActions[0].Action)
		assert.Equal(t, "sent", resp.RecentActions[1].Action)
	})

	t.Run("MissingEmail", func(t *testing.T) {
		rec := doJSON(t, NewHandler(&stubService{}).Routes(), http.MethodGet, "/status", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UserNotFound", func(t *testing.T) {
		svc := &stubService{statusErr: emailverification.ErrUserNotFound}
		rec := doJSON(t, NewHandler(svc).Routes(), http.MethodGet, "/status?email=a@example.com", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRoutes_WithRealService(t *testing.T) {
	directory := identity.NewMemoryDirectory()
	_, err := directory.Add("a@example.com")
	require.NoError(t, err)
	log := audit.NewMemoryLog()
	svc := emailverification.NewService(
		emailverification.NewMemoryTokenStore(),
		directory,
		log,
		ratelimit.NewSendLimiter(log),
		emailverification.WithDevVisibleCodes(true),
	)
	h := NewHandler(svc).Routes()

	rec := doJSON(t, h, http.MethodPost, "/request", RequestCodeRequest{Email: "a@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var issued RequestCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.Len(t, issued.Code, emailverification.DefaultCodeLength)

	rec = doJSON(t, h, http.MethodPost, "/verify", VerifyCodeRequest{Email: "a@example.com", Code: issued.Code})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/status?email=a@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Verified)
	assert.Equal(t, "verified", status.RecentActions[0].Action)

	entries, err := log.Recent(context.Background(), uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
