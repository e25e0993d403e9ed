package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld is returned by LocalLocker when the key is already locked.
var ErrLockHeld = errors.New("lock held")

// Locker hands out short-lived exclusive locks by key. The Redis lock manager
// implements it for multi-process deployments.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// LocalLocker is an in-process Locker for single-worker deployments without
// Redis. The ttl is ignored; locks are held until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLockHeld
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
