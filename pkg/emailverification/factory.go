package emailverification

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig carries what each persistence type needs.
type RepositoryConfig struct {
	// Pool is required for postgres.
	Pool *pgxpool.Pool
	// DataDir is required for file.
	DataDir string
}

// NewTokenStore creates a token store for the given persistence type.
func NewTokenStore(persistenceType string, config RepositoryConfig, opts ...StoreOption) (TokenStore, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres token store")
		}
		return NewPostgresTokenStore(config.Pool, opts...), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file token store")
		}
		return NewFileTokenStore(config.DataDir, opts...)
	case "memory":
		return NewMemoryTokenStore(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
