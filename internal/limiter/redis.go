package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript counts a hit only while under ARGV[1]; the window starts on the first hit.
// Returns {count, allowed, pttl}.
var takeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
local allowed = 0
if current < max then
  current = redis.call('INCR', KEYS[1])
  allowed = 1
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {current, allowed, ttl}
`)

// RedisStore shares counters across instances through Redis.
type RedisStore struct {
	rdb    redis.Scripter
	prefix string
}

// NewRedisStore constructs a store; keys are namespaced with prefix.
func NewRedisStore(rdb redis.Scripter, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	vals, err := takeScript.Run(ctx, s.rdb, []string{s.prefix + key}, max, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("limiter: unexpected script reply %v", vals)
	}
	return Result{
		Count:   vals[0],
		Allowed: vals[1] == 1,
		ResetIn: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
