package host

import "context"

// Configuration keys used by the agent.
const (
	ConfigNamespace = "usr"
	ConfigPrefix    = "abrp."
	KeyUserToken    = "user_token"
)

// Scheduler topics.
const (
	EventVehicleOn  = "vehicle.on"
	EventVehicleOff = "vehicle.off"
)

// MetricsRegistry is the vehicle's named-signal store. Keys missing from GetValues are
// signals the vehicle or firmware does not provide.
type MetricsRegistry interface {
	GetValues(ctx context.Context, names []string) (map[string]any, error)
	HasValue(ctx context.Context, name string) (bool, error)
}

// ConfigStore persists operator settings grouped by namespace. Keys passed to and returned
// from the store are relative to prefix. Setting a key to "" removes it.
type ConfigStore interface {
	GetValues(ctx context.Context, namespace, prefix string) (map[string]string, error)
	SetValues(ctx context.Context, namespace, prefix string, values map[string]string) error
}
