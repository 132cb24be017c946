package ledger

import (
	"context"
	"sync"
	"time"
)

// userLocks hands out one binary semaphore per user id. It is a local
// fast-path in front of the risk profile row lock: within one process,
// callers for the same user queue here instead of piling onto the database
// lock, and acquisition honors the caller's deadline. The row lock remains
// the authoritative serialization across processes.
type userLocks struct {
	mu    sync.Mutex
	locks map[uint]chan struct{}
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uint]chan struct{})}
}

func (l *userLocks) sem(userID uint) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.locks[userID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[userID] = sem
	}
	return sem
}

// acquire blocks until the user's lock is held, the context is cancelled,
// or the timeout elapses. On timeout the request was never applied and is
// safe to retry.
func (l *userLocks) acquire(ctx context.Context, userID uint, timeout time.Duration) (release func(), err error) {
	sem := l.sem(userID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}
