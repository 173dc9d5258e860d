package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

// AccountLocker serializes metering operations per account. Admission
// checks and usage recording for the same account must not interleave;
// operations on different accounts need no coordination.
type AccountLocker interface {
	// Lock acquires the lock for an account and returns a release
	// function. The release function must always be called.
	Lock(ctx context.Context, accountID string) (func(), error)
}

// MemoryLocker is an in-process AccountLocker backed by a concurrent
// map of per-account mutexes. Suitable for single-instance deployments
// and tests.
type MemoryLocker struct {
	mu *xsync.MapOf[string, *sync.Mutex]
}

// NewMemoryLocker creates a new in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		mu: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Lock acquires the per-account mutex.
func (l *MemoryLocker) Lock(_ context.Context, accountID string) (func(), error) {
	m, _ := l.mu.LoadOrStore(accountID, &sync.Mutex{})
	m.Lock()
	return m.Unlock, nil
}

// RedisLocker is a distributed AccountLocker using Redis SET NX with a
// TTL. Use it when multiple instances meter the same accounts.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker creates a Redis-backed locker. The TTL bounds how long
// a crashed holder can keep an account locked.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Lock acquires the account lock, retrying briefly under contention.
func (l *RedisLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	const maxRetries = 50
	const retryDelay = 10 * time.Millisecond

	key := "aiusage:lock:" + accountID

	for i := 0; i < maxRetries; i++ {
		acquired, err := l.rdb.SetNX(ctx, key, "1", l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock: %w", err)
		}
		if acquired {
			return func() {
				l.rdb.Del(context.Background(), key)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("could not acquire lock for account %s", accountID)
}
