package emailverification

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/google/uuid"
)

// MemoryTokenStore keeps tokens in process. All tokens live in the arena;
// active holds the one unused token per user, if any. Both are guarded by mu.
type MemoryTokenStore struct {
	mu     sync.Mutex
	arena  map[uuid.UUID]*VerificationToken
	active map[uuid.UUID]uuid.UUID
	opts   storeOptions

	// save runs under mu after every mutation. A failed save is rolled back.
	save func() error
}

func NewMemoryTokenStore(opts ...StoreOption) *MemoryTokenStore {
	return &MemoryTokenStore{
		arena:  make(map[uuid.UUID]*VerificationToken),
		active: make(map[uuid.UUID]uuid.UUID),
		opts:   newStoreOptions(opts),
		save:   func() error { return nil },
	}
}

func (s *MemoryTokenStore) Issue(ctx context.Context, userID uuid.UUID) (*VerificationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("issue token", err)
	}

	token, err := s.opts.newToken(userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevID, hadPrev := s.active[userID]
	if hadPrev {
		used := token.CreatedAt
		s.arena[prevID].UsedAt = &used
	}
	s.arena[token.ID] = token
	s.active[userID] = token.ID

	if err := s.save(); err != nil {
		delete(s.arena, token.ID)
		delete(s.active, userID)
		if hadPrev {
			s.arena[prevID].UsedAt = nil
			s.active[userID] = prevID
		}
		return nil, persistenceError("issue token", err)
	}

	cp := *token
	return &cp, nil
}

func (s *MemoryTokenStore) Consume(ctx context.Context, userID uuid.UUID, code string) (*VerificationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("consume token", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[userID]
	if !ok {
		return nil, ErrInvalidOrExpiredToken
	}
	token := s.arena[id]
	now := s.opts.now()
	if !token.IsActive(now) || subtle.ConstantTimeCompare([]byte(token.Code), []byte(code)) != 1 {
		return nil, ErrInvalidOrExpiredToken
	}

	token.UsedAt = &now
	delete(s.active, userID)

	if err := s.save(); err != nil {
		token.UsedAt = nil
		s.active[userID] = id
		return nil, persistenceError("consume token", err)
	}

	cp := *token
	return &cp, nil
}
