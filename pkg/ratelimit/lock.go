package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"
)

// Locker serializes the check-issue-record sequence for one user, so that
// concurrent requests cannot all pass CanSend before any of them is
// recorded. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, userID uuid.UUID) (unlock func(), error)
}

// NewLocker returns the Locker matching the persistence type. Postgres uses
// advisory locks so that every replica shares them; other types run in a
// single process.
func NewLocker(persistenceType string, pool *pgxpool.Pool) (Locker, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if pool == nil {
			return nil, fmt.Errorf("pool required for postgres send lock")
		}
		return NewAdvisoryLocker(pool), nil
	case "file", "memory":
		return NewKeyedMutex(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}

// KeyedMutex is an in-process Locker with one lock per user. Entries are
// dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	held chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*keyLock)}
}

// Lock waits for the user's lock or for ctx to end.
func (m *KeyedMutex) Lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	m.mu.Lock()
	k, ok := m.locks[userID]
	if !ok {
		k = &keyLock{held: make(chan struct{}, 1)}
		m.locks[userID] = k
	}
	k.refs++
	m.mu.Unlock()

	select {
	case k.held <- struct{}{}:
	case <-ctx.Done():
		m.release(userID, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.held
			m.release(userID, k)
		})
	}, nil
}

func (m *KeyedMutex) release(userID uuid.UUID, k *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(m.locks, userID)
	}
}

// AdvisoryLocker takes a session-level Postgres advisory lock per user on a
// dedicated pool connection, held until unlock. Callers in the same process
// queue on a KeyedMutex first, and at most half of the pool's connections
// hold or wait for advisory locks, leaving the rest for the locked work.
type AdvisoryLocker struct {
	pool  *pgxpool.Pool
	local *KeyedMutex
	slots *semaphore.Weighted
}

func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{
		pool:  pool,
		local: NewKeyedMutex(),
		slots: semaphore.NewWeighted(max(1, int64(pool.Config().MaxConns)/2)),
	}
}

// The key space is seeded with 1 so it never collides with the per-user
// transaction lock taken by the token store, which uses seed 0.
const (
	lockQuery   = `SELECT pg_advisory_lock(hashtextextended($1::text, 1))`
	unlockQuery = `SELECT pg_advisory_unlock(hashtextextended($1::text, 1))`
)

func (l *AdvisoryLocker) Lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := l.slots.Acquire(ctx, 1); err != nil {
		unlockLocal()
		return nil, err
	}
	release := func() {
		l.slots.Release(1)
		unlockLocal()
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, lockQuery, userID.String()); err != nil {
		// A canceled wait can leave the session in an unknown state.
		conn.Conn().Close(context.Background())
		conn.Release()
		release()
		return nil, fmt.Errorf("acquire send lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, unlockQuery, userID.String()); err != nil {
				slog.Error("Failed to release send lock, dropping connection", "user_id", userID, "error", err)
				conn.Conn().Close(ctx)
			}
			conn.Release()
			release()
		})
	}, nil
}
