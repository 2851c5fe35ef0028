package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks serializes jobs touching overlapping project sets.
// It uses Reference Counting to garbage collect unused locks.
type Locks struct {
	mu    sync.Mutex                       // Global lock for the map
	locks map[domain.ProjectKey]*lockEntry // Map of active locks

	locker ports.DistributedLocker // Optional distributed locker
	ttl    time.Duration
	logger *slog.Logger
}

// LockOption configures Locks.
type LockOption func(*Locks)

// WithDistributedLocker also takes a cross-process lock per project.
// A zero ttl keeps the default.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) LockOption {
	return func(l *Locks) {
		l.locker = locker
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockLogger configures a logger for deferred unlock failures.
func WithLockLogger(logger *slog.Logger) LockOption {
	return func(l *Locks) {
		l.logger = logger
	}
}

func NewLocks(opts ...LockOption) *Locks {
	l := &Locks{
		locks:  make(map[domain.ProjectKey]*lockEntry),
		ttl:    30 * time.Second,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(project) after unlocking.
func (l *Locks) acquire(project domain.ProjectKey) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[project]
	if !exists {
		entry = &lockEntry{}
		l.locks[project] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *Locks) release(project domain.ProjectKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[project]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, project)
	}
}

// Held returns the number of projects with a live lock entry.
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// WithLocks runs fn while holding the locks of every project.
// Locks are taken in sorted order so that overlapping sets cannot deadlock.
func (l *Locks) WithLocks(ctx context.Context, projects []domain.ProjectKey, fn func(context.Context) error) error {
	keys := slices.Clone(projects)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	var unlocks []func()
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()

	for _, p := range keys {
		unlock, err := l.lock(ctx, p)
		if err != nil {
			return err
		}
		unlocks = append(unlocks, unlock)
	}
	return fn(ctx)
}

func (l *Locks) lock(ctx context.Context, project domain.ProjectKey) (func(), error) {
	entry := l.acquire(project)
	entry.mu.Lock()
	local := func() {
		entry.mu.Unlock()
		l.release(project)
	}

	if l.locker == nil {
		return local, nil
	}
	unlock, err := l.locker.Lock(ctx, "project:"+string(project), l.ttl)
	if err != nil {
		local()
		return nil, fmt.Errorf("failed to acquire distributed lock for %s: %w", project, err)
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"project", project,
				"err", err,
			)
		}
		local()
	}, nil
}
