package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory keeps users in process, keyed by normalized email.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[uuid.UUID]*User
	now     func() time.Time

	// save runs under mu after every mutation. A failed save is rolled back.
	save func() error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byEmail: make(map[string]*User),
		byID:    make(map[uuid.UUID]*User),
		now:     func() time.Time { return time.Now().UTC() },
		save:    func() error { return nil },
	}
}

// Add registers a new unconfirmed user and returns it.
func (d *MemoryDirectory) Add(email string) (*User, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return nil, fmt.Errorf("email is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byEmail[key]; ok {
		return nil, fmt.Errorf("user with email %s already exists", key)
	}
	u := &User{ID: uuid.New(), Email: key}
	d.byEmail[key] = u
	d.byID[u.ID] = u
	if err := d.save(); err != nil {
		delete(d.byEmail, key)
		delete(d.byID, u.ID)
		return nil, err
	}
	cp := *u
	return &cp, nil
}

// Insert is Add with a context, satisfying Seeder.
func (d *MemoryDirectory) Insert(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Add(email)
}

func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryDirectory) SetEmailConfirmed(ctx context.Context, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	if u.EmailConfirmed {
		return nil
	}
	at := d.now()
	u.EmailConfirmed = true
	u.EmailConfirmedAt = &at
	if err := d.save(); err != nil {
		u.EmailConfirmed = false
		u.EmailConfirmedAt = nil
		return err
	}
	return nil
}
