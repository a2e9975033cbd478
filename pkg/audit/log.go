package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Log is the append-only audit store.
type Log interface {
	// Append stores e. Entries are never modified afterwards.
	Append(ctx context.Context, e *Entry) error
	// CountSince counts the user's entries with one of actions and a
	// timestamp strictly after since.
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time, actions ...Action) (int, error)
	// Recent returns up to limit of the user's entries, newest first.
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)
}

// RepositoryConfig carries what each persistence type needs.
type RepositoryConfig struct {
	// Pool is required for postgres.
	Pool *pgxpool.Pool
	// DataDir is required for file.
	DataDir string
}

// NewLog creates an audit log for the given persistence type.
func NewLog(persistenceType string, config RepositoryConfig) (Log, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres audit log")
		}
		return NewPostgresLog(config.Pool), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file audit log")
		}
		return NewFileLog(config.DataDir)
	case "memory":
		return NewMemoryLog(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
