package emailverification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTokenStore keeps tokens in the verification_tokens table. A
// partial unique index on user_id WHERE used_at IS NULL backs the
// one-active-token rule.
type PostgresTokenStore struct {
	db   *pgxpool.Pool
	opts storeOptions
}

func NewPostgresTokenStore(db *pgxpool.Pool, opts ...StoreOption) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, opts: newStoreOptions(opts)}
}

// Issue serializes on a per-user advisory lock, retires unused tokens and
// inserts the new one in a single transaction.
func (s *PostgresTokenStore) Issue(ctx context.Context, userID uuid.UUID) (*VerificationToken, error) {
	token, err := s.opts.newToken(userID)
	if err != nil {
		return nil, err
	}

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID); err != nil {
			return fmt.Errorf("lock user tokens: %w", err)
		}

		invalidate := `
			UPDATE verification_tokens
			SET used_at = $2
			WHERE user_id = $1 AND used_at IS NULL
		`
		if _, err := tx.Exec(ctx, invalidate, userID, token.CreatedAt); err != nil {
			return fmt.Errorf("invalidate previous tokens: %w", err)
		}

		insert := `
			INSERT INTO verification_tokens (id, user_id, code, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, insert, token.ID, token.UserID, token.Code, token.CreatedAt, token.ExpiresAt); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("issue token", err)
	}
	return token, nil
}

// Consume is a single guarded UPDATE; only one caller can see the row
// transition from unused to used.
func (s *PostgresTokenStore) Consume(ctx context.Context, userID uuid.UUID, code string) (*VerificationToken, error) {
	query := `
		UPDATE verification_tokens
		SET used_at = $4
		WHERE user_id = $1
		AND code = $2
		AND used_at IS NULL
		AND expires_at > $3
		RETURNING id, user_id, code, created_at, expires_at, used_at
	`
	now := s.opts.now()

	var t VerificationToken
	err := s.db.QueryRow(ctx, query, userID, code, now, now).Scan(
		&t.ID,
		&t.UserID,
		&t.Code,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, persistenceError("consume token", err)
	}
	return &t, nil
}
