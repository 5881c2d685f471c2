package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"abrplink/backend/services/abrp-agent/internal/host"
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by New for unsupported backend names.
var ErrUnknownBackend = errors.New("configstore: unknown backend")

// Deps carries the clients a backend may need.
type Deps struct {
	Redis *redis.Client
	DB    *sql.DB
	Table string
}

// New returns the store for backend.
func New(backend string, deps Deps) (host.ConfigStore, error) {
	switch strings.ToLower(backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("configstore: redis backend requires a client")
		}
		return NewRedisStore(deps.Redis), nil
	case BackendPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("configstore: postgres backend requires a database")
		}
		return NewPostgresStore(deps.DB, deps.Table), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemoryStore returns empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]string)}
}

// GetValues implements host.ConfigStore.
func (s *MemoryStore) GetValues(_ context.Context, namespace, prefix string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range s.values[namespace] {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out, nil
}

// SetValues implements host.ConfigStore.
func (s *MemoryStore) SetValues(_ context.Context, namespace, prefix string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.values[namespace]
	if !ok {
		ns = make(map[string]string)
		s.values[namespace] = ns
	}
	for k, v := range values {
		if v == "" {
			delete(ns, prefix+k)
			continue
		}
		ns[prefix+k] = v
	}
	return nil
}

var _ host.ConfigStore = (*MemoryStore)(nil)
