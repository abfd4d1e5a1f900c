package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrLockNameEmpty is returned when the lock name is empty.
	ErrLockNameEmpty = errors.New("lock: name cannot be empty")

	// ErrLockNotHeld is returned when releasing a lock that was not acquired.
	ErrLockNotHeld = errors.New("lock: not held")
)

// releaseScript deletes the lock key only when it still carries our
// token, so a lock that expired and was re-acquired by another holder
// is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DistributedLock is a best-effort mutex on Redis (SET NX with TTL).
//
// It serializes periodic jobs across worker replicas: only one replica
// generates the daily challenge cohort, the others skip the run. The
// guarded operations are idempotent, so a lock lost to TTL expiry
// degrades to duplicate work, never to corruption.
type DistributedLock struct {
	cache *Cache
	name  string
	ttl   time.Duration
	token string
}

// NewDistributedLock creates a lock with the given name and TTL.
// The TTL must comfortably exceed the guarded operation's duration.
func NewDistributedLock(cache *Cache, name string, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	return &DistributedLock{
		cache: cache,
		name:  name,
		ttl:   ttl,
	}
}

// key builds the Redis key for this lock.
func (l *DistributedLock) key() string {
	return PrefixLock + l.name
}

// Acquire attempts to take the lock. Returns false when another holder
// has it.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	if l.name == "" {
		return false, ErrLockNameEmpty
	}

	token := uuid.NewString()
	ok, err := l.cache.Client().SetNX(ctx, l.key(), token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lock if we still hold it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if l.token == "" {
		return ErrLockNotHeld
	}

	token := l.token
	l.token = ""
	_, err := releaseScript.Run(ctx, l.cache.Client(), []string{l.key()}, token).Result()
	return err
}
