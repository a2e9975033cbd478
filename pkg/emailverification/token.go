package emailverification

import (
	"time"

	"github.com/google/uuid"
)

// VerificationToken is a single issued code. A token is active while
// UsedAt is nil and ExpiresAt is in the future.
type VerificationToken struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Code      string     `json:"code"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsActive reports whether the token can still be consumed at now.
func (t *VerificationToken) IsActive(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
