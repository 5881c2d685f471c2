package telemetry

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/models"
	"abrplink/backend/services/abrp-agent/internal/signals"
)

type numericField struct {
	field     Field
	precision int
	set       func(*models.TelemetryRecord, *float64)
}

// numericFields lists every float field in the record with its rounding precision.
var numericFields = []numericField{
	{FieldSOC, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.SOC = v }},
	{FieldPower, models.PrecisionPower, func(r *models.TelemetryRecord, v *float64) { r.Power = v }},
	{FieldSpeed, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.Speed = v }},
	{FieldLat, models.PrecisionPosition, func(r *models.TelemetryRecord, v *float64) { r.Lat = v }},
	{FieldLon, models.PrecisionPosition, func(r *models.TelemetryRecord, v *float64) { r.Lon = v }},
	{FieldCapacity, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.Capacity = v }},
	{FieldKwhCharged, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.KwhCharged = v }},
	{FieldSOH, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.SOH = v }},
	{FieldHeading, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.Heading = v }},
	{FieldElevation, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.Elevation = v }},
	{FieldExtTemp, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.ExtTemp = v }},
	{FieldBattTemp, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.BattTemp = v }},
	{FieldVoltage, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.Voltage = v }},
	{FieldCurrent, models.PrecisionCurrent, func(r *models.TelemetryRecord, v *float64) { r.Current = v }},
	{FieldOdometer, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.Odometer = v }},
	{FieldEstBatteryRange, models.PrecisionDefault, func(r *models.TelemetryRecord, v *float64) { r.EstBatteryRange = v }},
}

// flagSignals feed the derived booleans.
var flagSignals = []string{SignalChargeState, SignalChargeMode, SignalParkTime}

// plan is the resolver table for one vehicle family plus the signals it needs.
type plan struct {
	family    string
	resolvers map[Field]Resolver
	signals   []string
}

// Mapper turns registry signals into a TelemetryRecord.
type Mapper struct {
	accessor *signals.Accessor
	logger   *zap.Logger
	generic  plan
	families map[string]plan
}

// MapperOption customizes a Mapper.
type MapperOption func(*mapperOptions)

type mapperOptions struct {
	families []Family
}

// WithFamilies replaces the default family table.
func WithFamilies(families ...Family) MapperOption {
	return func(o *mapperOptions) {
		o.families = families
	}
}

// NewMapper returns mapper reading through accessor.
func NewMapper(accessor *signals.Accessor, logger *zap.Logger, opts ...MapperOption) *Mapper {
	o := mapperOptions{families: DefaultFamilies()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	m := &Mapper{
		accessor: accessor,
		logger:   logger,
		generic:  newPlan(genericResolvers()),
		families: make(map[string]plan, len(o.families)),
	}
	for _, f := range o.families {
		resolvers := genericResolvers()
		for field, r := range f.Overrides {
			resolvers[field] = r
		}
		fp := newPlan(resolvers)
		fp.family = f.Name
		m.families[f.ID] = fp
	}
	return m
}

func newPlan(resolvers map[Field]Resolver) plan {
	seen := make(map[string]struct{})
	var names []string
	add := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for _, r := range resolvers {
		for _, n := range r.Signals {
			add(n)
		}
	}
	for _, n := range flagSignals {
		add(n)
	}
	sort.Strings(names)
	return plan{resolvers: resolvers, signals: names}
}

// VehicleType returns the family id reported by the vehicle, "" when unknown.
func (m *Mapper) VehicleType(ctx context.Context) string {
	v, ok := m.accessor.Fetch(ctx, SignalVehicleType)
	if !ok {
		return ""
	}
	s, _ := signals.Snapshot{SignalVehicleType: v}.String(SignalVehicleType)
	return s
}

// Build reads the registry and returns the rounded telemetry record. Fields whose signals
// are unsupported are left nil.
func (m *Mapper) Build(ctx context.Context) models.TelemetryRecord {
	p := m.generic
	vehicleType := m.VehicleType(ctx)
	if fp, ok := m.families[vehicleType]; ok {
		p = fp
		m.logger.Debug("vehicle family resolved", zap.String("type", vehicleType), zap.String("family", fp.family))
	}
	return p.build(m.accessor.Snapshot(ctx, p.signals))
}

// BuildFrom maps an already captured snapshot using the family's table.
func (m *Mapper) BuildFrom(vehicleType string, snap signals.Snapshot) models.TelemetryRecord {
	p := m.generic
	if fp, ok := m.families[vehicleType]; ok {
		p = fp
	}
	return p.build(snap)
}

// Sample reads raw battery power and speed for the smoothing buffer. ok is false unless
// both signals are supported.
func (m *Mapper) Sample(ctx context.Context) (models.Sample, bool) {
	snap := m.accessor.Snapshot(ctx, []string{SignalPower, SignalSpeed})
	v, ok := snap.Floats(SignalPower, SignalSpeed)
	if !ok {
		return models.Sample{}, false
	}
	return models.Sample{Power: v[0], Speed: v[1]}, true
}

func (p plan) build(snap signals.Snapshot) models.TelemetryRecord {
	var rec models.TelemetryRecord

	if r, ok := p.resolvers[FieldUTC]; ok {
		if v, ok := r.Resolve(snap); ok && finite(v) {
			rec.UTC = models.Int(int64(math.Round(v)))
		}
	}

	for _, nf := range numericFields {
		r, ok := p.resolvers[nf.field]
		if !ok {
			continue
		}
		v, ok := r.Resolve(snap)
		if !ok || !finite(v) {
			continue
		}
		nf.set(&rec, models.Round(&v, nf.precision))
	}

	if state, ok := snap.String(SignalChargeState); ok {
		charging := IsActiveChargeState(state)
		rec.IsCharging = models.Bool(charging)
		if charging {
			if mode, ok := snap.String(SignalChargeMode); ok {
				rec.IsDCFC = models.Bool(mode == ChargeModeFast)
			}
		}
	}

	if parkTime, ok := snap.Float(SignalParkTime); ok {
		rec.IsParked = models.Bool(parkTime > 0)
	}

	return rec
}

// finite guards derived values, e.g. a capacity product overflowing to +Inf.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
