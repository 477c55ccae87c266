package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps key-value pairs as plain redis strings
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL parses a redis:// URL and pings the server
func NewRedisStoreFromURL(ctx context.Context, rawURL string, pingTimeout time.Duration) (*RedisStore, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryConfiguration, "INVALID_REDIS_URL", "database", "NewRedisStoreFromURL", false)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, shared.WrapError(fmt.Errorf("failed to ping redis: %w", err),
			shared.ErrorCategoryStorage, "REDIS_PING_FAILED", "database", "NewRedisStoreFromURL", true)
	}

	logrus.WithField("addr", options.Addr).Info("Connected to redis successfully")
	return NewRedisStore(client), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if key := iter.Val(); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return result, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", prefix, err)
	}
	for i, raw := range values {
		// A key can vanish between SCAN and MGET
		if str, ok := raw.(string); ok {
			result[keys[i]] = []byte(str)
		}
	}
	return result, nil
}

// HealthCheck pings the server
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *RedisStore) Close() error {
	return s.client.Close()
}
