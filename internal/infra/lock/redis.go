package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockExpired = errors.New("lock expired before release")

// compare-and-delete so a holder never frees a lock it no longer owns
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// compare-and-extend; ARGV[2] is the new TTL in milliseconds
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// leaseClient is the part of *redis.Client the locker uses.
type leaseClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker holds a per-key lease in Redis so that several API instances
// serialise work on the same entity. The lease is extended every ttl/3
// while it is held, so a slow transaction keeps its lock.
type RedisLocker struct {
	client leaseClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisLocker {
	return newRedisLocker(client, ttl, log)
}

func newRedisLocker(client leaseClient, ttl time.Duration, log *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLocker{
		client: client,
		prefix: "slot-scheduler:lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		log:    log,
	}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, fullKey, token, stop, done)

	return func() {
		close(stop)
		<-done

		// released on a fresh context: the caller's may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		n, err := l.client.Eval(rctx, releaseScript, []string{fullKey}, token).Int()
		if err != nil {
			l.log.Error("release lock failed", "key", key, "error", err)
			return
		}
		if n == 0 {
			l.log.Warn("lock released after expiry", "key", key, "error", ErrLockExpired)
		}
	}, nil
}

// keepAlive extends the lease until stop is closed or the lease is lost.
func (l *RedisLocker) keepAlive(key, fullKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := l.ttl / 3
	if every <= 0 {
		every = l.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := l.client.Eval(ctx, renewScript, []string{fullKey}, token, l.ttl.Milliseconds()).Int()
		cancel()

		if err != nil {
			l.log.Error("renew lock failed", "key", key, "error", err)
			continue
		}
		if n == 0 {
			l.log.Warn("lock lease lost", "key", key, "error", ErrLockExpired)
			return
		}
	}
}
