package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps draft blobs in Redis without expiry. Useful when several
// agent processes on one site share drafts.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client; keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "drafts:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the stored blob.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get draft %s: %w", key, err)
	}
	return raw, nil
}

// Put stores the blob with no TTL.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set draft %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete draft %s: %w", key, err)
	}
	return nil
}
