package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"repairhub/internal/ratelimit/models"
)

// incrementScript applies one fixed-window step atomically. The key is a
// hash {start, count} that expires with its window, so idle keys cost
// nothing. Times are unix milliseconds supplied by the caller.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
if start == nil or now >= start + window then
	redis.call('HSET', KEYS[1], 'start', ARGV[1], 'count', 1)
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, now}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, start}
`)

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore shares counters between instances.
type RedisStore struct {
	client RedisClient
	prefix string
}

// NewRedisStore creates a store on client. Keys are namespaced by prefix.
func NewRedisStore(client RedisClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (models.Window, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return models.Window{}, fmt.Errorf("window must be at least one millisecond, got %s", window)
	}

	vals, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, now.UnixMilli(), windowMs).Int64Slice()
	if err != nil {
		return models.Window{}, fmt.Errorf("redis fixed window increment: %w", err)
	}
	if len(vals) != 2 {
		return models.Window{}, fmt.Errorf("redis fixed window increment: unexpected reply length %d", len(vals))
	}
	return models.Window{Start: time.UnixMilli(vals[1]), Count: int(vals[0])}, nil
}

// Reset clears the counter for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}
