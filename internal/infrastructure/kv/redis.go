package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
)

// Lua script for conditional delete (only the stored value's owner may
// remove the key).
var compareAndDeleteScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisStore implements Store on a shared Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, infraErr("kv get", err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return infraErr("kv set", err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, infraErr("kv setnx", err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	result, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, value).Result()
	if err != nil {
		return false, infraErr("kv compare-and-delete", err)
	}
	n, ok := result.(int64)
	return ok && n == 1, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, infraErr("kv incr", err)
	}
	return val, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, infraErr("kv expire", err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return infraErr("kv del", err)
	}
	return nil
}

// infraErr tags store failures as retryable infrastructure errors so
// callers can branch on domainErrors.ErrStoreUnavailable.
func infraErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domainErrors.ErrStoreUnavailable, err)
}
