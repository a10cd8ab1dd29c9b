// Package locking provides the per-affiliate serialization scope: every
// mutating onboarding or payout operation for one affiliate runs under
// WithLock so two concurrent requests cannot interleave.
package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld reports that another operation currently owns the key.
var ErrLockHeld = errors.New("lock_held")

// Locker provides mutual exclusion scoped to a string key.
type Locker interface {
	// TryLock acquires the key or returns ok=false if it is held elsewhere.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// WithLock runs fn while holding the key, retrying acquisition briefly
// before giving up with ErrLockHeld.
func WithLock(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	const (
		ttl        = 30 * time.Second
		maxAttempt = 5
		backoff    = 50 * time.Millisecond
	)

	var token string
	acquired := false
	for attempt := 0; attempt < maxAttempt; attempt++ {
		t, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			token = t
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << attempt):
		}
	}
	if !acquired {
		return ErrLockHeld
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, key, token)
	}()

	return fn(ctx)
}

// MemoryLocker is the single-process fallback used when redis is not
// configured, and in tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]string
	clock func() time.Time
	exp   map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]string),
		exp:   make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if deadline, ok := l.exp[key]; ok && now.Before(deadline) {
		return "", false, nil
	}

	token := newToken()
	l.held[key] = token
	l.exp[key] = now.Add(ttl)
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == token {
		delete(l.held, key)
		delete(l.exp, key)
	}
	return nil
}
