package emailverification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCodeLength    = 6
	DefaultTokenLifetime = 10 * time.Minute
)

// TokenStore owns verification tokens.
type TokenStore interface {
	// Issue supersedes every unused token of the user and stores a new one.
	// Concurrent calls for the same user leave exactly one active token.
	Issue(ctx context.Context, userID uuid.UUID) (*VerificationToken, error)

	// Consume marks the matching active token used and returns it, in one
	// atomic step. It returns ErrInvalidOrExpiredToken when no active token
	// matches.
	Consume(ctx context.Context, userID uuid.UUID, code string) (*VerificationToken, error)
}

// CodeGenerator returns a numeric code of the given length.
type CodeGenerator func(length int) (string, error)

type storeOptions struct {
	codeLength int
	lifetime   time.Duration
	now        func() time.Time
	generate   CodeGenerator
}

// StoreOption configures a TokenStore.
type StoreOption func(*storeOptions)

// WithCodeLength sets the number of digits in issued codes.
func WithCodeLength(n int) StoreOption {
	return func(o *storeOptions) {
		o.codeLength = n
	}
}

// WithLifetime sets how long an issued code stays valid.
func WithLifetime(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.lifetime = d
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.now = now
	}
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(g CodeGenerator) StoreOption {
	return func(o *storeOptions) {
		o.generate = g
	}
}

func newStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{
		codeLength: DefaultCodeLength,
		lifetime:   DefaultTokenLifetime,
		now:        func() time.Time { return time.Now().UTC() },
		generate:   GenerateCode,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o storeOptions) newToken(userID uuid.UUID) (*VerificationToken, error) {
	code, err := o.generate(o.codeLength)
	if err != nil {
		return nil, err
	}
	now := o.now()
	return &VerificationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(o.lifetime),
	}, nil
}

// GenerateCode returns a uniformly random zero-padded numeric code.
func GenerateCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
