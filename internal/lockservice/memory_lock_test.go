package lockservice

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireExclusivity(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	_, ok1, err := l.Acquire(ctx, "ride:1:matching", time.Second)
	require.NoError(t, err)
	require.True(t, ok1)

	_, ok2, err := l.Acquire(ctx, "ride:1:matching", time.Second)
	require.NoError(t, err)
	require.False(t, ok2)
}

func TestReleaseRequiresMatchingToken(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()
	token, ok, err := l.Acquire(ctx, "name", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	err = l.Release(ctx, "name", "wrong-token")
	require.Error(t, err)

	err = l.Release(ctx, "name", token)
	require.NoError(t, err)
}

func TestAcquireAfterExpiry(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()
	_, ok, err := l.Acquire(ctx, "name", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok2, err := l.Acquire(ctx, "name", time.Second)
	require.NoError(t, err)
	require.True(t, ok2)
}

func TestWithLockConcurrentExclusion(t *testing.T) {
	l := NewMemoryLock()
	var inside int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), "ride:x:matching", time.Second, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxObserved) {
					atomic.StoreInt32(&maxObserved, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxObserved)
}
