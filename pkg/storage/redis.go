package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 24 * time.Hour

// RedisStore keeps session keys in Redis with a TTL, for hosts that share
// session continuity across processes.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = &RedisStore{}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis get")
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(s.rdb.Set(ctx, key, value, s.ttl).Err(), "redis set")
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return errors.Wrap(s.rdb.Del(ctx, key).Err(), "redis del")
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
