package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "lock:", ttl), mr
}

func lockers(t *testing.T) map[string]Locker {
	redisLocker, _ := newRedisLocker(t, 5*time.Second)
	return map[string]Locker{
		"local": NewLocalLocker(),
		"redis": redisLocker,
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var inside, overlaps atomic.Int32
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 5 {
						release, err := l.Acquire(ctx, "sub_1")
						if !assert.NoError(t, err) {
							return
						}
						if inside.Add(1) > 1 {
							overlaps.Add(1)
						}
						time.Sleep(time.Millisecond)
						inside.Add(-1)
						release()
					}
				}()
			}
			wg.Wait()

			assert.Zero(t, overlaps.Load())
		})
	}
}

func TestLocker_ContextCancelled(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "sub_busy")
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			_, err = l.Acquire(ctx, "sub_busy")
			assert.ErrorIs(t, err, ErrNotAcquired)
		})
	}
}

func TestLocker_IndependentKeys(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			r1, err := l.Acquire(ctx, "sub_a")
			require.NoError(t, err)
			r2, err := l.Acquire(ctx, "sub_b")
			require.NoError(t, err)
			r1()
			r2()
			r1()
		})
	}
}

func TestRedisLocker_ReleaseKeepsForeignHold(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sub_1")
	require.NoError(t, err)

	// Simulate expiry and another instance taking the key.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:sub_1", "other-token"))

	release()

	got, err := mr.Get("lock:sub_1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLocker_HoldExpires(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)

	_, err := l.Acquire(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:sub_1"))

	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists("lock:sub_1"))
}
