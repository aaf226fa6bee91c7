package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "apiclient:session"

// RedisStore persists the record in Redis under "<prefix>:<tenant>".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	tenant string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore) error

// WithKeyPrefix replaces the "apiclient:session" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) error {
		if prefix == "" {
			return errors.New("key prefix cannot be empty")
		}
		s.prefix = prefix
		return nil
	}
}

// WithTTL expires the record after ttl. Every Save renews it.
//
// Default: no expiry
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) error {
		if ttl <= 0 {
			return errors.New("ttl must be positive")
		}
		s.ttl = ttl
		return nil
	}
}

// NewRedisStore creates a store for tenant, typically a user or device id.
func NewRedisStore(rdb redis.UniversalClient, tenant string, opts ...RedisOption) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if tenant == "" {
		return nil, errors.New("tenant cannot be empty")
	}

	s := &RedisStore{redis: rdb, prefix: defaultKeyPrefix, tenant: tenant}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return s, nil
}

func (s *RedisStore) key() string {
	return s.prefix + ":" + s.tenant
}

func (s *RedisStore) Load(ctx context.Context) (Record, error) {
	data, err := s.redis.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNoSession
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	encoded, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
