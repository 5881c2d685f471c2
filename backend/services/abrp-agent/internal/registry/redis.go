package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"abrplink/backend/services/abrp-agent/internal/host"
)

// DefaultHashKey is where the vehicle gateway publishes its metrics.
const DefaultHashKey = "vehicle:metrics"

// RedisRegistry reads signals from a redis hash maintained by the vehicle gateway,
// one field per metric name. Values arrive as strings; the accessor converts them.
type RedisRegistry struct {
	client  *redis.Client
	hashKey string
}

// NewRedisRegistry returns redis-backed registry.
func NewRedisRegistry(client *redis.Client, hashKey string) *RedisRegistry {
	if hashKey == "" {
		hashKey = DefaultHashKey
	}
	return &RedisRegistry{client: client, hashKey: hashKey}
}

// GetValues implements host.MetricsRegistry.
func (r *RedisRegistry) GetValues(ctx context.Context, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return map[string]any{}, nil
	}
	values, err := r.client.HMGet(ctx, r.hashKey, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: hmget %s: %w", r.hashKey, err)
	}
	out := make(map[string]any, len(names))
	for i, v := range values {
		if v == nil {
			continue
		}
		out[names[i]] = v
	}
	return out, nil
}

// HasValue implements host.MetricsRegistry.
func (r *RedisRegistry) HasValue(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.HExists(ctx, r.hashKey, name).Result()
	if err != nil {
		return false, fmt.Errorf("registry: hexists %s: %w", name, err)
	}
	return ok, nil
}

var _ host.MetricsRegistry = (*RedisRegistry)(nil)
