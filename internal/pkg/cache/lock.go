package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived exclusive locks keyed by string.
type Locker interface {
	// TryAcquire attempts to take the lock without blocking. It returns
	// acquired=false when someone else holds it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// releaseScript deletes the key only if it still carries our token, so a
// lock that expired and was taken by another caller is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	rdb redis.UniversalClient
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// the request context may already be cancelled
			if err := releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Err(); err != nil {
				log.Warnf("Failed to release lock %s: %v", key, err)
			}
		})
	}
	return release, true, nil
}

// InMemoryLocker implements Locker for tests and single instance setups.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (l *InMemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, held := l.locks[key]; held && (expires.IsZero() || now.Before(expires)) {
		return nil, false, nil
	}
	// a zero expiry never times out
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	l.locks[key] = expires

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// only drop our own entry
			if cur, ok := l.locks[key]; ok && cur.Equal(expires) {
				delete(l.locks, key)
			}
		})
	}
	return release, true, nil
}
