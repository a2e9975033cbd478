package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-process Log. Entries live in a single slice in append
// order; byUser indexes positions per user.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	byUser  map[uuid.UUID][]int

	// save runs under mu after every append. A failed save is rolled back.
	save func() error
}

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		byUser: make(map[uuid.UUID][]int),
		save:   func() error { return nil },
	}
}

func (l *MemoryLog) Append(ctx context.Context, e *Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.add(*e)
	if err := l.save(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		idx := l.byUser[e.UserID]
		l.byUser[e.UserID] = idx[:len(idx)-1]
		return err
	}
	return nil
}

func (l *MemoryLog) add(e Entry) {
	l.entries = append(l.entries, e)
	l.byUser[e.UserID] = append(l.byUser[e.UserID], len(l.entries)-1)
}

func (l *MemoryLog) CountSince(ctx context.Context, userID uuid.UUID, since time.Time, actions ...Action) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, i := range l.byUser[userID] {
		e := l.entries[i]
		if e.Timestamp.After(since) && slices.Contains(actions, e.Action) {
			count++
		}
	}
	return count, nil
}

func (l *MemoryLog) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.byUser[userID]
	out := make([]Entry, 0, min(limit, len(idx)))
	for i := len(idx) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[idx[i]])
	}
	return out, nil
}
