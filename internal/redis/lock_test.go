package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, 5*time.Second)
}

func TestWithLockRunsAndReleases(t *testing.T) {
	mr, locker := newTestLocker(t)

	ran := false
	err := locker.WithLock(context.Background(), "sweep", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:sweep"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:sweep"), "lock key should be released")
}

func TestWithLockRefusesSecondHolder(t *testing.T) {
	_, locker := newTestLocker(t)

	err := locker.WithLock(context.Background(), "sweep", func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "sweep", func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestWithLockPropagatesCallbackError(t *testing.T) {
	mr, locker := newTestLocker(t)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "sweep", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:sweep"))
}

func TestReleaseDoesNotDeleteForeignToken(t *testing.T) {
	mr, locker := newTestLocker(t)
	rl := locker.(*redisLocker)

	require.NoError(t, mr.Set("lock:sweep", "someone-else"))
	require.NoError(t, rl.release(context.Background(), "lock:sweep", "my-token"))

	got, err := mr.Get("lock:sweep")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
