package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const swapRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 2
`

var swapRefreshLua = redis.NewScript(swapRefreshScript)

// RedisBackend keeps one digest per user at "<prefix>:rt:<userID>".
// When ttl is positive the key expires with the refresh token it guards.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackend returns a Backend on rdb.
func NewRedisBackend(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "pa"
	}
	return &RedisBackend{redis: rdb, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) key(userID string) string {
	return b.prefix + ":rt:" + userID
}

// LoadRefreshHash implements Backend.
func (b *RedisBackend) LoadRefreshHash(ctx context.Context, userID string) (string, bool, error) {
	v, err := b.redis.Get(ctx, b.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// StoreRefreshHash implements Backend.
func (b *RedisBackend) StoreRefreshHash(ctx context.Context, userID, digest string) error {
	return b.redis.Set(ctx, b.key(userID), digest, b.ttl).Err()
}

// ClearRefreshHash implements Backend.
func (b *RedisBackend) ClearRefreshHash(ctx context.Context, userID string) error {
	return b.redis.Del(ctx, b.key(userID)).Err()
}

// SwapRefreshHash implements Backend with a Lua compare-and-swap.
func (b *RedisBackend) SwapRefreshHash(ctx context.Context, userID, expected, next string) (SwapResult, error) {
	res, err := swapRefreshLua.Run(ctx, b.redis, []string{b.key(userID)}, expected, next, b.ttl.Milliseconds()).Int64()
	if err != nil {
		return SwapMissing, err
	}
	return SwapResult(res), nil
}
