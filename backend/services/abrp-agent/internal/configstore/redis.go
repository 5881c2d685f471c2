package configstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"abrplink/backend/services/abrp-agent/internal/host"
)

// RedisStore keeps each namespace in one hash, field names carry the prefix.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(namespace string) string {
	return fmt.Sprintf("config:%s", namespace)
}

// GetValues implements host.ConfigStore.
func (s *RedisStore) GetValues(ctx context.Context, namespace, prefix string) (map[string]string, error) {
	all, err := s.client.HGetAll(ctx, s.key(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("configstore: hgetall %s: %w", namespace, err)
	}
	out := make(map[string]string)
	for k, v := range all {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out, nil
}

// SetValues implements host.ConfigStore.
func (s *RedisStore) SetValues(ctx context.Context, namespace, prefix string, values map[string]string) error {
	var set []any
	var del []string
	for k, v := range values {
		if v == "" {
			del = append(del, prefix+k)
			continue
		}
		set = append(set, prefix+k, v)
	}

	key := s.key(namespace)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, key, set...)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, key, del...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("configstore: update %s: %w", namespace, err)
	}
	return nil
}

var _ host.ConfigStore = (*RedisStore)(nil)
