package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// LockFileName is the per-root lock file inside the root's cache directory.
const LockFileName = ".index.lock"

// lockRetryDelay is how often a held file lock is polled.
const lockRetryDelay = 100 * time.Millisecond

// Locker serializes work on a knowledge root. An in-process semaphore
// orders goroutines; a file lock (gofrs/flock) orders processes, so a
// CLI reindex and a running server never write one root at once.
type Locker struct {
	dirFor func(root string) string

	mu    sync.Mutex
	roots map[string]chan struct{}
}

// NewLocker creates a locker. dirFor maps a root to its cache directory.
func NewLocker(dirFor func(root string) string) *Locker {
	return &Locker{dirFor: dirFor, roots: make(map[string]chan struct{})}
}

func (l *Locker) sem(root string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.roots[root]
	if !ok {
		s = make(chan struct{}, 1)
		l.roots[root] = s
	}
	return s
}

// Acquire blocks until root is free or ctx is done.
func (l *Locker) Acquire(ctx context.Context, root string) (*RootLock, error) {
	sem := l.sem(root)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lock := &RootLock{sem: sem, path: filepath.Join(l.dirFor(root), LockFileName)}
	if err := lock.lockFile(ctx); err != nil {
		<-sem
		return nil, err
	}
	return lock, nil
}

// TryAcquire takes root's lock without waiting. It reports false when
// another goroutine or process holds it.
func (l *Locker) TryAcquire(root string) (*RootLock, bool, error) {
	sem := l.sem(root)
	select {
	case sem <- struct{}{}:
	default:
		return nil, false, nil
	}

	lock := &RootLock{sem: sem, path: filepath.Join(l.dirFor(root), LockFileName)}
	if err := os.MkdirAll(filepath.Dir(lock.path), 0o755); err != nil {
		<-sem
		return nil, false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock.flock = flock.New(lock.path)
	acquired, err := lock.flock.TryLock()
	if err != nil || !acquired {
		<-sem
		if err != nil {
			return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
		}
		return nil, false, nil
	}
	lock.locked = true
	return lock, true, nil
}

// RootLock is a held lock on one root.
type RootLock struct {
	sem    chan struct{}
	path   string
	flock  *flock.Flock
	locked bool
}

func (r *RootLock) lockFile(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	r.flock = flock.New(r.path)
	acquired, err := r.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return kberrors.New(kberrors.ErrCodeLocked, "failed to acquire index lock", err).
			WithDetail("path", r.path)
	}
	if !acquired {
		return kberrors.New(kberrors.ErrCodeLocked, "index lock is held by another process", nil).
			WithDetail("path", r.path)
	}
	r.locked = true
	return nil
}

// Path returns the lock file path.
func (r *RootLock) Path() string {
	return r.path
}

// Release unlocks the root. It is safe to call more than once.
func (r *RootLock) Release() error {
	if !r.locked {
		return nil
	}
	r.locked = false
	err := r.flock.Unlock()
	<-r.sem
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
