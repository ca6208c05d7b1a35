package finalize

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestMemoryLatch_SingleShot(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLatch()

	ok, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "app-1")
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "app-1"))
	ok, _ = l.Acquire(ctx, "app-1")
	assert.True(t, ok, "released latch can be re-entered")

	require.NoError(t, l.Complete(ctx, "app-1"))
	require.NoError(t, l.Release(ctx, "app-1"))
	ok, _ = l.Acquire(ctx, "app-1")
	assert.False(t, ok, "completed latch is never released")
}

func TestMemoryLatch_ConcurrentAcquire(t *testing.T) {
	l := NewMemoryLatch()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Acquire(context.Background(), "app-1")
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestRedisLatch_Lifecycle(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLatch(client, "checkout", 24*time.Hour)

	ok, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, latchInProgress, mustGet(t, mr, "checkout:finalize:latch:app-1"))
	assert.Equal(t, defaultHoldTTL, mr.TTL("checkout:finalize:latch:app-1"))

	// Another worker instance shares the same key.
	other := NewRedisLatch(client, "checkout", 24*time.Hour)
	ok, err = other.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "app-1"))
	assert.False(t, mr.Exists("checkout:finalize:latch:app-1"))

	ok, _ = other.Acquire(ctx, "app-1")
	require.True(t, ok)
	require.NoError(t, other.Complete(ctx, "app-1"))
	assert.Equal(t, latchDone, mustGet(t, mr, "checkout:finalize:latch:app-1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("checkout:finalize:latch:app-1"))

	require.NoError(t, l.Release(ctx, "app-1"))
	assert.True(t, mr.Exists("checkout:finalize:latch:app-1"))
}

func TestRedisLatch_HoldExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLatch(client, "checkout", 24*time.Hour)

	ok, _ := l.Acquire(ctx, "app-1")
	require.True(t, ok)

	// The holder crashed without releasing.
	mr.FastForward(defaultHoldTTL + time.Second)

	ok, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLatch_ReleaseMissingKey(t *testing.T) {
	_, client := setupRedis(t)
	l := NewRedisLatch(client, "checkout", time.Hour)
	assert.NoError(t, l.Release(context.Background(), "never-acquired"))
}

func TestRedisLatch_AcquireError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLatch(client, "checkout", time.Hour)

	mock.ExpectSetNX("checkout:finalize:latch:app-1", latchInProgress, defaultHoldTTL).
		SetErr(stderrors.New("connection refused"))

	ok, err := l.Acquire(context.Background(), "app-1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisUploadTracker(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	tr := NewRedisUploadTracker(client, "checkout", time.Hour)

	done, err := tr.Uploaded(ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tr.MarkUploaded(ctx, "app-1"))
	done, err = tr.Uploaded(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, time.Hour, mr.TTL("checkout:finalize:uploaded:app-1"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
