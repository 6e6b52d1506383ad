package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each namespace in a hash for values, a sorted set for
// insertion order and a counter that scores the sorted set. Multi-key steps
// run as Lua scripts so they are atomic across server instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

var (
	setScript = redis.NewScript(`
local added = redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if added == 1 then
  redis.call('ZADD', KEYS[2], redis.call('INCR', KEYS[3]), ARGV[1])
end
return added`)

	setNXScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[2], redis.call('INCR', KEYS[3]), ARGV[1])
return 1`)

	deleteScript = redis.NewScript(`
local n = redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return n`)

	compareDeleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1`)

	popPairScript = redis.NewScript(`
local keys = redis.call('ZRANGE', KEYS[2], 0, -1)
for _, k in ipairs(keys) do
  if k ~= ARGV[1] then
    local v = redis.call('HGET', KEYS[1], k)
    if v then
      redis.call('HDEL', KEYS[1], k, ARGV[1])
      redis.call('ZREM', KEYS[2], k, ARGV[1])
      return {k, v}
    end
    redis.call('ZREM', KEYS[2], k)
  end
end
return false`)

	unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)
)

// NewRedisStore dials url and verifies the connection before returning.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisStoreFromClient(c, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client. Keys are prefixed with prefix.
func NewRedisStoreFromClient(c *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: c, prefix: prefix}
}

// Client exposes the underlying connection for pub/sub users.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) nsKeys(ns string) []string {
	base := r.prefix + ":" + ns
	return []string{base, base + ":order", base + ":seq"}
}

func (r *RedisStore) lockKey(key string) string {
	return r.prefix + ":lock:" + key
}

func (r *RedisStore) Get(ctx context.Context, ns, key string) (string, error) {
	res, err := r.client.HGet(ctx, r.nsKeys(ns)[0], key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return res, nil
}

func (r *RedisStore) Set(ctx context.Context, ns, key, value string) error {
	return setScript.Run(ctx, r.client, r.nsKeys(ns), key, value).Err()
}

func (r *RedisStore) SetNX(ctx context.Context, ns, key, value string) (bool, error) {
	n, err := setNXScript.Run(ctx, r.client, r.nsKeys(ns), key, value).Int()
	return n == 1, err
}

func (r *RedisStore) Delete(ctx context.Context, ns, key string) (bool, error) {
	n, err := deleteScript.Run(ctx, r.client, r.nsKeys(ns), key).Int()
	return n == 1, err
}

func (r *RedisStore) CompareAndDelete(ctx context.Context, ns, key, expected string) (bool, error) {
	n, err := compareDeleteScript.Run(ctx, r.client, r.nsKeys(ns), key, expected).Int()
	return n == 1, err
}

func (r *RedisStore) PopPair(ctx context.Context, ns, self string) (string, string, bool, error) {
	res, err := popPairScript.Run(ctx, r.client, r.nsKeys(ns), self).StringSlice()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	if len(res) != 2 {
		return "", "", false, fmt.Errorf("redis: pop pair: unexpected reply of %d elements", len(res))
	}
	return res[0], res[1], true, nil
}

func (r *RedisStore) Keys(ctx context.Context, ns string) ([]string, error) {
	return r.client.ZRange(ctx, r.nsKeys(ns)[1], 0, -1).Result()
}

func (r *RedisStore) Lock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.lockKey(key), token, ttl).Result()
}

func (r *RedisStore) Unlock(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, r.client, []string{r.lockKey(key)}, token).Int()
	return n == 1, err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
