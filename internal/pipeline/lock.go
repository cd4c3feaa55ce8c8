package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "jobs:lock:audio:"

// releaseScript deletes the lock only if it still holds our value, so a worker
// whose lock expired cannot release a lock taken over by another worker.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes processing per audio item with a Redis SET NX lock.
// The TTL must exceed the longest possible run so a crashed worker cannot
// block an item forever.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker creates a locker. ttl <= 0 defaults to 20 minutes.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Acquire tries to take the lock for an audio item. It returns a release
// function and true on success, or (nil, false) when another worker holds it.
func (l *RedisLocker) Acquire(ctx context.Context, audioID int64) (func(), bool, error) {
	key := fmt.Sprintf("%s%d", lockPrefix, audioID)
	val := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, key, val, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// release uses a background context so it still runs when the job
		// context is already canceled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{key}, val).Err()
	}
	return release, true, nil
}
