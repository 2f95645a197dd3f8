package history

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker is an in-process per-chat lease for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLease
	wait  time.Duration
}

type localLease struct {
	held chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &LocalLocker{locks: make(map[string]*localLease), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, chatID string) (func(), error) {
	l.mu.Lock()
	lease, ok := l.locks[chatID]
	if !ok {
		lease = &localLease{held: make(chan struct{}, 1)}
		l.locks[chatID] = lease
	}
	lease.refs++
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case lease.held <- struct{}{}:
	case <-waitCtx.Done():
		l.unref(chatID, lease)
		return nil, fmt.Errorf("%w: %w", ErrLockBusy, waitCtx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lease.held
			l.unref(chatID, lease)
		})
	}, nil
}

func (l *LocalLocker) unref(chatID string, lease *localLease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lease.refs--
	if lease.refs == 0 {
		delete(l.locks, chatID)
	}
}
