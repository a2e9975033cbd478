package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads and updates the users table.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, email_verified, email_verified_at
		FROM users
		WHERE lower(email) = $1 AND deleted_at IS NULL
	`
	var u User
	err := d.db.QueryRow(ctx, query, NormalizeEmail(email)).Scan(
		&u.ID, &u.Email, &u.EmailConfirmed, &u.EmailConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &u, nil
}

func (d *PostgresDirectory) SetEmailConfirmed(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET email_verified = TRUE,
			email_verified_at = COALESCE(email_verified_at, $2)
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := d.db.Exec(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Insert creates an unconfirmed user. Used by seeding and tests.
func (d *PostgresDirectory) Insert(ctx context.Context, email string) (*User, error) {
	u := &User{ID: uuid.New(), Email: NormalizeEmail(email)}
	_, err := d.db.Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, $2)`, u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}
