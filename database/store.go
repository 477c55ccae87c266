package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
)

// Store is the key-value persistence contract used for profiles, overrides,
// result history and the persisted catalog. Writes are last-write-wins and
// there are no multi-key transactions.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mutex sync.RWMutex
	data  map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	result := make(map[string][]byte)
	for key, value := range s.data {
		if strings.HasPrefix(key, prefix) {
			result[key] = append([]byte(nil), value...)
		}
	}
	return result, nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

// OpenStore connects the backend selected in cfg
func OpenStore(ctx context.Context, cfg shared.StoreConfig) (Store, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "database",
		"method":    "OpenStore",
		"backend":   cfg.Backend,
	})

	switch cfg.Backend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, "MISSING_DATABASE_URL",
				"DATABASE_URL is required for the postgres store", "database", "OpenStore", false, nil)
		}
		store, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Using postgres key-value store")
		return store, nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, "MISSING_REDIS_URL",
				"REDIS_URL is required for the redis store", "database", "OpenStore", false, nil)
		}
		store, err := NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.PingTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("Using redis key-value store")
		return store, nil
	case "", "memory":
		logger.Info("Using in-memory key-value store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
