package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrQueueFull is returned when every delivery slot is busy.
	ErrQueueFull = errors.New("notification queue full")
	// ErrNotifierClosed is returned by Send once Close has been called.
	ErrNotifierClosed = errors.New("notifier closed")
)

// AsyncNotifier runs deliveries on background goroutines, at most limit at
// a time. Send returns as soon as the delivery is scheduled; delivery
// errors are only logged.
type AsyncNotifier struct {
	next Notifier
	sem  *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncNotifier(next Notifier, limit int64) *AsyncNotifier {
	if limit <= 0 {
		limit = 1
	}
	return &AsyncNotifier{
		next: next,
		sem:  semaphore.NewWeighted(limit),
	}
}

func (a *AsyncNotifier) Send(ctx context.Context, address string, kind Kind, payload map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrNotifierClosed
	}
	if !a.sem.TryAcquire(1) {
		return ErrQueueFull
	}

	// The request context ends when the handler returns; keep its values only.
	bg := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.sem.Release(1)
		if err := a.next.Send(bg, address, kind, payload); err != nil {
			slog.ErrorContext(bg, "Background notification failed", "kind", kind, "error", err)
		}
	}()
	return nil
}

// Close stops accepting deliveries and waits for in-flight ones or for ctx
// to end.
func (a *AsyncNotifier) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
