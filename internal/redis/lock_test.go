package redisclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

func newTestRedisLocker(t *testing.T, mr *miniredis.Miniredis, wait time.Duration) Locker {
	t.Helper()
	client, err := Connect(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, 5*time.Second, wait)
}

func TestRedisLocker_RunsAndReleases(t *testing.T) {
	mr := setupTestRedis(t)
	locker := newTestRedisLocker(t, mr, 100*time.Millisecond)

	called := false
	err := locker.WithLock(context.Background(), "doctor-day:dr-rao:2024-05-01", func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists("lock:doctor-day:dr-rao:2024-05-01"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists("lock:doctor-day:dr-rao:2024-05-01"))
}

func TestRedisLocker_PropagatesCallbackError(t *testing.T) {
	mr := setupTestRedis(t)
	locker := newTestRedisLocker(t, mr, 100*time.Millisecond)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:k"))
}

func TestRedisLocker_BoundedWaitWhenHeld(t *testing.T) {
	mr := setupTestRedis(t)
	locker := newTestRedisLocker(t, mr, 50*time.Millisecond)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	start := time.Now()
	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
		t.Fatal("callback must not run while the lock is held")
		return nil
	})
	close(done)

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedisLocker_DoesNotReleaseForeignToken(t *testing.T) {
	mr := setupTestRedis(t)
	locker := newTestRedisLocker(t, mr, 30*time.Millisecond)
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error { return nil })

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	got, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_WaiterAcquiresAfterRelease(t *testing.T) {
	mr := setupTestRedis(t)
	locker := newTestRedisLocker(t, mr, 2*time.Second)

	held := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			time.Sleep(60 * time.Millisecond)
			return nil
		})
	}()
	<-held

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(2 * time.Second)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)

	err := locker.WithLock(context.Background(), "a", func(ctx context.Context) error {
		return locker.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
	})

	assert.NoError(t, err)
}

func TestLocalLocker_BoundedWait(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)

	err := locker.WithLock(context.Background(), "a", func(ctx context.Context) error {
		return locker.WithLock(ctx, "a", func(ctx context.Context) error { return nil })
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
}
