package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerOptions configures a RedisLocker.
type RedisLockerOptions struct {
	// Prefix is prepended to every key.
	Prefix string
	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration
	// RetryInterval is the polling delay while the key is held.
	RetryInterval time.Duration
}

// RedisLocker is a Locker backed by SET NX PX with token checked release.
type RedisLocker struct {
	client redis.Cmdable
	opts   RedisLockerOptions
}

// NewRedisLocker wraps a go-redis client.
func NewRedisLocker(client redis.Cmdable, optFns ...func(o *RedisLockerOptions)) *RedisLocker {
	opts := RedisLockerOptions{
		Prefix:        "caredesk:lock:",
		TTL:           2 * time.Minute,
		RetryInterval: 100 * time.Millisecond,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisLocker{client: client, opts: opts}
}

// NewRedisClient connects to a Redis server given a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("lock: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	name := l.opts.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.opts.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Join(ErrLocked, ctxErr)
			}
			return nil, fmt.Errorf("lock: acquire %s: %w", name, err)
		}

		if ok {
			break
		}

		timer := time.NewTimer(l.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrLocked, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled.
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(relCtx, l.client, []string{name}, token).Err()
		})
	}, nil
}
