package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := l.Lock(context.Background(), "TK-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, l.Held())
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()

	u1, err := l.Lock(context.Background(), "TK-1")
	require.NoError(t, err)
	u2, err := l.Lock(context.Background(), "TK-2")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Held())

	u1()
	u1()
	u2()
	assert.Equal(t, 0, l.Held())
}

func TestLocalLocker_ContextDeadline(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "TK-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "TK-1")
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Held())
}

func TestRedisLocker_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	l := NewRedisLocker(client, func(o *RedisLockerOptions) { o.Prefix = "test:" })
	assert.Equal(t, "test:", l.opts.Prefix)
	assert.Equal(t, 2*time.Minute, l.opts.TTL)
}

func TestRedisLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisLocker(client).Lock(ctx, "TK-1")
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 2, c.Options().DB)

	_, err = NewRedisClient("://bad")
	assert.Error(t, err)
}
