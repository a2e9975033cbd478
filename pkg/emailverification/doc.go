// Package emailverification issues and checks short-lived numeric codes
// that prove a user controls the email address on their account.
//
// # Overview
//
// The package provides:
//   - TokenStore with Postgres and in-memory implementations
//   - Service with RequestCode, VerifyCode and GetStatus
//   - Typed errors for every rejected request
//
// A user holds at most one active code. Issuing a code retires every
// earlier one, and a code is consumed exactly once. Send limits are
// derived from the audit log, so there is no counter to reset.
//
// # Basic Usage
//
//	store := emailverification.NewPostgresTokenStore(pool,
//		emailverification.WithCodeLength(6),
//		emailverification.WithLifetime(10*time.Minute),
//	)
//	auditLog := audit.NewPostgresLog(pool)
//	limiter := ratelimit.NewSendLimiter(auditLog)
//
//	service := emailverification.NewService(
//		store,
//		identity.NewPostgresDirectory(pool),
//		auditLog,
//		limiter,
//		emailverification.WithNotifier(manager),
//		emailverification.WithBaseURL("https://app.example.com"),
//	)
//
//	_, err := service.RequestCode(ctx, "a@example.com", false)
//	result, err := service.VerifyCode(ctx, "a@example.com", "042517")
//
// # Errors
//
// Domain failures are returned as sentinels (ErrUserNotFound,
// ErrAlreadyVerified, ErrRateLimited, ErrInvalidOrExpiredToken). Storage
// faults and timeouts are returned as *PersistenceError and match
// ErrPersistence. Notification failures are logged and never returned.
package emailverification
