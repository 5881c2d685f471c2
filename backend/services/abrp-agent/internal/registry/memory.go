package registry

import (
	"context"
	"sync"

	"abrplink/backend/services/abrp-agent/internal/host"
)

// MemoryRegistry keeps signals in process memory. Used for bench runs and tests.
type MemoryRegistry struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryRegistry returns registry seeded with values.
func NewMemoryRegistry(values map[string]any) *MemoryRegistry {
	r := &MemoryRegistry{values: make(map[string]any, len(values))}
	for k, v := range values {
		r.values[k] = v
	}
	return r
}

// Set stores a signal value.
func (r *MemoryRegistry) Set(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
}

// SetAll stores several signal values at once.
func (r *MemoryRegistry) SetAll(values map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range values {
		r.values[k] = v
	}
}

// Delete marks a signal unsupported.
func (r *MemoryRegistry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, name)
}

// GetValues implements host.MetricsRegistry.
func (r *MemoryRegistry) GetValues(_ context.Context, names []string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := r.values[name]; ok && v != nil {
			out[name] = v
		}
	}
	return out, nil
}

// HasValue implements host.MetricsRegistry.
func (r *MemoryRegistry) HasValue(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return ok && v != nil, nil
}

var _ host.MetricsRegistry = (*MemoryRegistry)(nil)
