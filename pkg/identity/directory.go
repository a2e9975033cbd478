// Package identity is the narrow view of the account store needed by
// email verification: look a user up by address and flip the confirmed flag.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// User is an account as seen by email verification.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmed   bool       `json:"email_verified"`
	EmailConfirmedAt *time.Time `json:"email_verified_at,omitempty"`
}

// Directory resolves users and records email confirmation.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetEmailConfirmed(ctx context.Context, userID uuid.UUID) error
}

// Seeder creates unconfirmed accounts. Used for local seeding and tests.
type Seeder interface {
	Insert(ctx context.Context, email string) (*User, error)
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RepositoryConfig carries what each persistence type needs.
type RepositoryConfig struct {
	// Pool is required for postgres.
	Pool *pgxpool.Pool
	// DataDir is required for file.
	DataDir string
}

// NewDirectory creates a directory for the given persistence type.
func NewDirectory(persistenceType string, config RepositoryConfig) (Directory, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres directory")
		}
		return NewPostgresDirectory(config.Pool), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file directory")
		}
		return NewFileDirectory(config.DataDir)
	case "memory":
		return NewMemoryDirectory(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
