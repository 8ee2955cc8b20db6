package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOwnership(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	locker := NewLocker(rdb)
	key := LockKey(testScope(t), "refresh", "family-1")

	first, err := locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, 5*time.Second)
	assert.True(t, errors.Is(err, ErrLockUnavailable))

	// The first lock expires and someone else takes the key.
	mr.FastForward(6 * time.Second)
	second, err := locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	released, err := first.Release(ctx)
	require.NoError(t, err)
	assert.False(t, released, "stale holder must not delete a foreign lock")
	assert.True(t, mr.Exists(key))

	released, err = second.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists(key))
}

func TestLockSingleWinner(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	locker := NewLocker(rdb)
	key := LockKey(testScope(t), "idem", "k")

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := locker.Acquire(ctx, key, time.Second)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, ErrLockUnavailable)
	}
	assert.Equal(t, 1, winners)
}

func TestLockBackendFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.SetError("LOADING")
	_, err := NewLocker(rdb).Acquire(context.Background(), "lock:g:x:y", time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)
}
