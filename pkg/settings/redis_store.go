package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisHashKey is the Redis hash holding all policy settings
const DefaultRedisHashKey = "lms:settings"

// RedisStore implements Store as fields of one Redis hash
type RedisStore struct {
	client  redis.Cmdable
	hashKey string
}

// NewRedisStore creates a settings store backed by Redis
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, hashKey: DefaultRedisHashKey}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s from redis: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.hashKey, key, value).Err(); err != nil {
		return fmt.Errorf("failed to write setting %s to redis: %w", key, err)
	}
	return nil
}
