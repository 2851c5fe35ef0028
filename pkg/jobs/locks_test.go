package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	fail     error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.locked = append(l.locked, key)
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocked = append(l.unlocked, key)
		return nil
	}, nil
}

func TestLocks_NoLeak(t *testing.T) {
	l := NewLocks()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		p := domain.ProjectKey(fmt.Sprintf("project-%d", i))
		require.NoError(t, l.WithLocks(ctx, []domain.ProjectKey{p, "shared"}, func(context.Context) error {
			return nil
		}))
	}
	assert.Zero(t, l.Held())
}

func TestLocks_OverlappingSetsDoNotDeadlock(t *testing.T) {
	l := NewLocks()
	ctx := context.Background()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set := []domain.ProjectKey{"a", "b"}
			if i%2 == 0 {
				set = []domain.ProjectKey{"b", "a", "b"}
			}
			_ = l.WithLocks(ctx, set, func(context.Context) error {
				counter++
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, l.Held())
}

func TestLocks_Distributed(t *testing.T) {
	locker := &recordingLocker{}
	l := NewLocks(WithDistributedLocker(locker, time.Second))

	err := l.WithLocks(context.Background(), []domain.ProjectKey{"b", "a"}, func(context.Context) error {
		return errors.New("body failed")
	})
	require.EqualError(t, err, "body failed")
	assert.Equal(t, []string{"project:a", "project:b"}, locker.locked)
	assert.Equal(t, []string{"project:b", "project:a"}, locker.unlocked)

	locker.fail = errors.New("redis down")
	called := false
	err = l.WithLocks(context.Background(), []domain.ProjectKey{"a"}, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Zero(t, l.Held())
}
