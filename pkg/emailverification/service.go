package emailverification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-verify/pkg/audit"
	"github.com/tendant/simple-verify/pkg/identity"
	"github.com/tendant/simple-verify/pkg/metrics"
	"github.com/tendant/simple-verify/pkg/notification"
	"github.com/tendant/simple-verify/pkg/ratelimit"
)

const (
	DefaultStatusHistory = 10
	DefaultStoreTimeout  = 5 * time.Second
)

// SendLimiter decides whether another code may be sent to a user.
type SendLimiter interface {
	CanSend(ctx context.Context, userID uuid.UUID) (bool, error)
	Remaining(ctx context.Context, userID uuid.UUID) (int, error)
}

// SendLocker serializes sends for one user across the limit check, the
// issue and the audit append.
type SendLocker interface {
	Lock(ctx context.Context, userID uuid.UUID) (unlock func(), error)
}

// RequestResult is returned by RequestCode. Code is empty unless
// development-visible codes are enabled.
type RequestResult struct {
	Code      string
	ExpiresAt time.Time
}

// VerifyResult is returned by a successful VerifyCode.
type VerifyResult struct {
	Verified   bool
	VerifiedAt time.Time
}

// StatusResult is returned by GetStatus.
type StatusResult struct {
	Email          string
	Verified       bool
	RecentActions  []audit.Entry
	RemainingSends int
}

// Service runs the verification flow: issue a code, check a code, report
// status.
type Service struct {
	store     TokenStore
	directory identity.Directory
	audit     audit.Log
	limiter   SendLimiter
	locker    SendLocker
	notifier  notification.Notifier

	baseURL         string
	devVisibleCodes bool
	statusHistory   int
	storeTimeout    time.Duration
	now             func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the delivery channel for codes and welcome messages.
func WithNotifier(n notification.Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithSendLocker replaces the in-process per-user lock, for example with a
// lock shared by every replica.
func WithSendLocker(l SendLocker) ServiceOption {
	return func(s *Service) {
		s.locker = l
	}
}

// WithBaseURL sets the frontend URL used to build verification links.
func WithBaseURL(baseURL string) ServiceOption {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithDevVisibleCodes returns issued codes to the caller. Development only.
func WithDevVisibleCodes(enabled bool) ServiceOption {
	return func(s *Service) {
		s.devVisibleCodes = enabled
	}
}

// WithStatusHistory sets how many audit entries GetStatus returns.
func WithStatusHistory(n int) ServiceOption {
	return func(s *Service) {
		s.statusHistory = n
	}
}

// WithStoreTimeout bounds every storage call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// WithServiceClock replaces the time source used for audit timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a verification service.
func NewService(
	store TokenStore,
	directory identity.Directory,
	auditLog audit.Log,
	limiter SendLimiter,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		store:         store,
		directory:     directory,
		audit:         auditLog,
		limiter:       limiter,
		locker:        ratelimit.NewKeyedMutex(),
		notifier:      notification.NoopNotifier{},
		statusHistory: DefaultStatusHistory,
		storeTimeout:  DefaultStoreTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCode issues a new code for the account owning email and sends it.
func (s *Service) RequestCode(ctx context.Context, email string, isResend bool) (*RequestResult, error) {
	user, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.EmailConfirmed {
		slog.InfoContext(ctx, "Email already verified", "user_id", user.ID)
		return nil, ErrAlreadyVerified
	}

	action := audit.ActionSent
	if isResend {
		action = audit.ActionResent
	}
	token, err := s.issueWithinLimit(ctx, user, action)
	if err != nil {
		return nil, err
	}
	metrics.CodesIssued.WithLabelValues(string(action)).Inc()

	s.notify(ctx, user.Email, notification.KindEmailVerification, map[string]string{
		"Code":             token.Code,
		"Email":            user.Email,
		"VerificationLink": s.verificationLink(user.Email, token.Code),
		"ExpiryMinutes":    strconv.Itoa(int(token.ExpiresAt.Sub(token.CreatedAt).Minutes())),
	})

	slog.InfoContext(ctx, "Verification code issued", "user_id", user.ID, "token_id", token.ID, "resend", isResend, "expires_at", token.ExpiresAt)

	result := &RequestResult{ExpiresAt: token.ExpiresAt}
	if s.devVisibleCodes {
		result.Code = token.Code
	}
	return result, nil
}

// VerifyCode checks code against the user's active token. Every attempt is
// recorded in the audit log. A confirmed user is rejected before the code
// is looked at.
func (s *Service) VerifyCode(ctx context.Context, email, code string) (*VerifyResult, error) {
	user, err := s.findUser(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordFailure(ctx, uuid.Nil, identity.NormalizeEmail(email), "user_not_found")
		} else {
			metrics.VerifyAttempts.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if user.EmailConfirmed {
		s.recordFailure(ctx, user.ID, user.Email, "already_verified")
		return nil, ErrAlreadyVerified
	}

	token, err := s.consume(ctx, user.ID, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			slog.WarnContext(ctx, "Invalid or expired verification code", "user_id", user.ID)
			s.recordFailure(ctx, user.ID, user.Email, "invalid_code")
		} else {
			slog.ErrorContext(ctx, "Failed to consume verification code", "user_id", user.ID, "error", err)
			s.recordFailure(ctx, user.ID, user.Email, "error")
		}
		return nil, err
	}

	if err := s.confirm(ctx, user.ID); err != nil {
		// The code is spent at this point; the caller has to request a new one.
		slog.ErrorContext(ctx, "Failed to mark email verified", "user_id", user.ID, "token_id", token.ID, "error", err)
		s.recordFailure(ctx, user.ID, user.Email, "error")
		return nil, err
	}

	if err := s.record(ctx, user.ID, user.Email, audit.ActionVerified); err != nil {
		slog.ErrorContext(ctx, "Failed to record verification", "user_id", user.ID, "error", err)
	}
	metrics.VerifyAttempts.WithLabelValues("verified").Inc()

	s.notify(ctx, user.Email, notification.KindWelcome, map[string]string{
		"Email": user.Email,
	})

	slog.InfoContext(ctx, "Email verified successfully", "user_id", user.ID, "token_id", token.ID)
	return &VerifyResult{Verified: true, VerifiedAt: *token.UsedAt}, nil
}

// GetStatus reports whether the email is verified along with recent audit
// activity and the sends left in the current window.
func (s *Service) GetStatus(ctx context.Context, email string) (*StatusResult, error) {
	user, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	entries, err := s.audit.Recent(sctx, user.ID, s.statusHistory)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load audit history", "user_id", user.ID, "error", err)
		return nil, persistenceError("load audit history", err)
	}

	remaining, err := s.limiter.Remaining(sctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to compute remaining sends", "user_id", user.ID, "error", err)
		return nil, persistenceError("count recent sends", err)
	}

	return &StatusResult{
		Email:          user.Email,
		Verified:       user.EmailConfirmed,
		RecentActions:  entries,
		RemainingSends: remaining,
	}, nil
}

func (s *Service) findUser(ctx context.Context, email string) (*identity.User, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.directory.FindByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		slog.ErrorContext(ctx, "Failed to find user", "error", err)
		return nil, persistenceError("find user", err)
	}
	return user, nil
}

// issueWithinLimit checks the send limit, issues a token and records the
// send while holding the user's send lock.
func (s *Service) issueWithinLimit(ctx context.Context, user *identity.User, action audit.Action) (*VerificationToken, error) {
	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	unlock, err := s.locker.Lock(lctx, user.ID)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to acquire send lock", "user_id", user.ID, "error", err)
		return nil, persistenceError("acquire send lock", err)
	}
	defer unlock()

	ok, err := s.canSend(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to check send limit", "user_id", user.ID, "error", err)
		return nil, err
	}
	if !ok {
		slog.WarnContext(ctx, "Send limit reached", "user_id", user.ID)
		metrics.RateLimited.Inc()
		return nil, ErrRateLimited
	}

	token, err := s.issue(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to issue verification code", "user_id", user.ID, "error", err)
		return nil, err
	}

	if err := s.record(ctx, user.ID, user.Email, action); err != nil {
		slog.ErrorContext(ctx, "Failed to record verification send", "user_id", user.ID, "error", err)
		return nil, err
	}
	return token, nil
}

func (s *Service) canSend(ctx context.Context, userID uuid.UUID) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	ok, err := s.limiter.CanSend(sctx, userID)
	if err != nil {
		return false, persistenceError("check send limit", err)
	}
	return ok, nil
}

func (s *Service) issue(ctx context.Context, userID uuid.UUID) (*VerificationToken, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	token, err := s.store.Issue(sctx, userID)
	if err != nil {
		return nil, persistenceError("issue token", err)
	}
	return token, nil
}

func (s *Service) consume(ctx context.Context, userID uuid.UUID, code string) (*VerificationToken, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	token, err := s.store.Consume(sctx, userID, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			return nil, err
		}
		return nil, persistenceError("consume token", err)
	}
	return token, nil
}

func (s *Service) confirm(ctx context.Context, userID uuid.UUID) error {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.directory.SetEmailConfirmed(sctx, userID); err != nil {
		return persistenceError("set email confirmed", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID uuid.UUID, email string, action audit.Action) error {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	entry := audit.NewEntry(userID, email, action, s.now(), audit.ClientInfoFromContext(ctx))
	if err := s.audit.Append(sctx, entry); err != nil {
		return persistenceError("append audit entry", err)
	}
	return nil
}

// recordFailure appends a failed entry. An append error is logged and does
// not replace the error already being returned to the caller.
func (s *Service) recordFailure(ctx context.Context, userID uuid.UUID, email, outcome string) {
	metrics.VerifyAttempts.WithLabelValues(outcome).Inc()
	if err := s.record(ctx, userID, email, audit.ActionFailed); err != nil {
		slog.ErrorContext(ctx, "Failed to record failed verification", "user_id", userID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, address string, kind notification.Kind, payload map[string]string) {
	if err := s.notifier.Send(ctx, address, kind, payload); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(kind)).Inc()
		slog.ErrorContext(ctx, "Failed to send notification", "kind", kind, "error", fmt.Errorf("%w: %w", ErrNotificationDeliveryFailed, err))
	}
}

func (s *Service) verificationLink(email, code string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("code", code)
	return fmt.Sprintf("%s/verify-email?%s", s.baseURL, q.Encode())
}
