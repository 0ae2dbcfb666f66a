package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/lock"
)

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerializes(t *testing.T) {
	locker := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var inCritical atomic.Int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "billing:reconcile:tr_1", time.Second, func(context.Context) error {
				if inCritical.Add(1) > 1 {
					overlapped.Store(true)
				}
				time.Sleep(10 * time.Millisecond)
				inCritical.Add(-1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.False(t, overlapped.Load())
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker := newLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "k", time.Second, func(context.Context) error {
		return context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the lock must be free again immediately
	acquired := false
	err = locker.WithLock(ctx, "k", time.Second, func(context.Context) error {
		acquired = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestWithLockContextCancelled(t *testing.T) {
	locker := newLocker(t)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "busy", time.Minute, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := locker.WithLock(ctx, "busy", time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}
