package signals

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/host"
)

// Accessor reads vehicle signals from the host registry. Registry failures are
// reported as unsupported signals, never as errors.
type Accessor struct {
	registry host.MetricsRegistry
	logger   *zap.Logger
}

// NewAccessor returns accessor over the registry.
func NewAccessor(registry host.MetricsRegistry, logger *zap.Logger) *Accessor {
	return &Accessor{registry: registry, logger: logger}
}

// Fetch reads a single signal.
func (a *Accessor) Fetch(ctx context.Context, name string) (any, bool) {
	ok, err := a.registry.HasValue(ctx, name)
	if err != nil {
		a.logger.Debug("registry has-value failed", zap.String("signal", name), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	values, err := a.registry.GetValues(ctx, []string{name})
	if err != nil {
		a.logger.Debug("registry get failed", zap.String("signal", name), zap.Error(err))
		return nil, false
	}
	v, ok := values[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Snapshot captures the given signals in one registry round trip.
func (a *Accessor) Snapshot(ctx context.Context, names []string) Snapshot {
	values, err := a.registry.GetValues(ctx, names)
	if err != nil {
		a.logger.Debug("registry snapshot failed", zap.Int("signals", len(names)), zap.Error(err))
		return Snapshot{}
	}
	snap := make(Snapshot, len(values))
	for name, v := range values {
		if v != nil {
			snap[name] = v
		}
	}
	return snap
}

// Snapshot is a point-in-time copy of raw signal values. Absent keys are unsupported.
type Snapshot map[string]any

// Has reports whether the signal is supported.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Float reads a numeric signal. Strings holding numbers are accepted since some registries
// store everything as text.
func (s Snapshot) Float(name string) (float64, bool) {
	v, ok := s[name]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Floats is all-or-nothing: it succeeds only when every signal is supported and numeric.
func (s Snapshot) Floats(names ...string) ([]float64, bool) {
	out := make([]float64, 0, len(names))
	for _, name := range names {
		f, ok := s.Float(name)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// String reads an enum/text signal.
func (s Snapshot) String(name string) (string, bool) {
	v, ok := s[name]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Bool reads a flag signal.
func (s Snapshot) Bool(name string) (bool, bool) {
	v, ok := s[name]
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			if f, ok := toFloat(t); ok {
				return f != 0, true
			}
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "yes", "on":
				return true, true
			case "no", "off":
				return false, true
			}
			return false, false
		}
		return b, true
	default:
		f, ok := toFloat(v)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}

// toFloat coerces a raw value to a finite number. NaN and infinities (which ParseFloat
// accepts as text) are treated as unsupported.
func toFloat(v any) (float64, bool) {
	f, ok := coerceFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []byte:
		return coerceFloat(string(t))
	default:
		return 0, false
	}
}
