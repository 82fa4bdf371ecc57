package counter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "lockgate/pkg/domain-errors"
)

// RedisCounter is a redis-backed attempt counter. INCR gives atomicity under
// concurrent failures; the decay TTL is attached when the key is created.
type RedisCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis constructs a redis-backed counter with the given decay window.
func NewRedis(rdb *redis.Client, decayWindow time.Duration) *RedisCounter {
	return &RedisCounter{rdb: rdb, ttl: decayWindow}
}

// Increment atomically increases the counter, creating it when absent.
// A count of 1 means INCR created the key, so the decay TTL is attached in a
// second call. A creator crashing between the two commands leaves a key with
// no expiry; this narrow window is accepted since Clear on unlock removes the
// key and the next full decay cycle starts clean.
func (c *RedisCounter) Increment(ctx context.Context, identifier string) (int, error) {
	key := throttleKey(identifier)

	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "increment attempt counter")
	}

	if n == 1 {
		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			// The count itself is correct; a missing TTL only delays decay.
			return int(n), dErrors.Wrap(err, dErrors.CodeUnavailable, "set attempt counter TTL")
		}
	}

	return int(n), nil
}

// Get returns the current count, 0 when the key is absent or expired.
func (c *RedisCounter) Get(ctx context.Context, identifier string) (int, error) {
	n, err := c.rdb.Get(ctx, throttleKey(identifier)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "read attempt counter")
	}
	return n, nil
}

// Clear removes the counter. Deleting a missing key is a no-op.
func (c *RedisCounter) Clear(ctx context.Context, identifier string) error {
	if err := c.rdb.Del(ctx, throttleKey(identifier)).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "clear attempt counter")
	}
	return nil
}
