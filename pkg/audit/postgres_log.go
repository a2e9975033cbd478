package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog stores audit entries in the verification_audit_log table.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog creates a Postgres-backed audit log.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts the entry. Entries with uuid.Nil store a NULL user_id.
func (l *PostgresLog) Append(ctx context.Context, e *Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	query := `
		INSERT INTO verification_audit_log (id, user_id, email, action, created_at, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
	`

	var userID *uuid.UUID
	if e.UserID != uuid.Nil {
		userID = &e.UserID
	}

	_, err := l.db.Exec(ctx, query, e.ID, userID, e.Email, string(e.Action), e.Timestamp, e.ClientIP, e.UserAgent)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// CountSince counts matching entries with created_at strictly after since.
func (l *PostgresLog) CountSince(ctx context.Context, userID uuid.UUID, since time.Time, actions ...Action) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM verification_audit_log
		WHERE user_id = $1
		AND created_at > $2
		AND action = ANY($3)
	`

	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	var count int
	if err := l.db.QueryRow(ctx, query, userID, since, names).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

// Recent returns the newest entries first. ULID ids break timestamp ties.
func (l *PostgresLog) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	query := `
		SELECT id, user_id, email, action, created_at, client_ip, user_agent
		FROM verification_audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := l.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			action    string
			clientIP  *string
			userAgent *string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &action, &e.Timestamp, &clientIP, &userAgent); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Timestamp = e.Timestamp.UTC()
		if clientIP != nil {
			e.ClientIP = *clientIP
		}
		if userAgent != nil {
			e.UserAgent = *userAgent
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
