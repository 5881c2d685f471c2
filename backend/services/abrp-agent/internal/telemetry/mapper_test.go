package telemetry

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"abrplink/backend/services/abrp-agent/internal/models"
	"abrplink/backend/services/abrp-agent/internal/policy"
	"abrplink/backend/services/abrp-agent/internal/registry"
	"abrplink/backend/services/abrp-agent/internal/signals"
)

func fullSignals() map[string]any {
	return map[string]any{
		SignalUTC:            int64(1700000000),
		SignalSOC:            81.6,
		SignalPower:          -48.12345,
		SignalSpeed:          0.4,
		SignalLatitude:       59.9138688,
		SignalLongitude:      10.7522454,
		SignalChargeState:    "charging",
		SignalChargeMode:     "performance",
		SignalParkTime:       3600,
		SignalCAC:            115.2,
		SignalNominalVoltage: 360.0,
		SignalKwhCharged:     12.7,
		SignalSOH:            "93.4",
		SignalDirection:      181.2,
		SignalAltitude:       12.6,
		SignalAmbientTemp:    4.5,
		SignalBatteryTemp:    21.4,
		SignalVoltage:        380.4,
		SignalCurrent:        -126.4567,
		SignalOdometer:       45012.7,
		SignalEstRange:       210.3,
	}
}

func newTestMapper(values map[string]any) *Mapper {
	reg := registry.NewMemoryRegistry(values)
	return NewMapper(signals.NewAccessor(reg, zap.NewNop()), zap.NewNop())
}

func TestBuildGenericRecord(t *testing.T) {
	rec := newTestMapper(fullSignals()).Build(context.Background())

	if rec.UTC == nil || *rec.UTC != 1700000000 {
		t.Fatalf("expected utc, got %v", rec.UTC)
	}
	if *rec.SOC != 82 {
		t.Fatalf("expected soc rounded to 82, got %v", *rec.SOC)
	}
	if *rec.Power != -48.12 {
		t.Fatalf("expected power rounded to 2 dp, got %v", *rec.Power)
	}
	if *rec.Lat != 59.91387 || *rec.Lon != 10.75225 {
		t.Fatalf("expected 5 dp position, got %v %v", *rec.Lat, *rec.Lon)
	}
	if *rec.Current != -126.46 {
		t.Fatalf("expected current rounded to 2 dp, got %v", *rec.Current)
	}
	if *rec.Capacity != 41 {
		t.Fatalf("expected capacity 115.2Ah*360V = 41kWh, got %v", *rec.Capacity)
	}
	if *rec.SOH != 93 {
		t.Fatalf("expected soh parsed from string and rounded, got %v", *rec.SOH)
	}
	if !rec.Charging() || !rec.FastCharging() || !rec.Parked() {
		t.Fatalf("expected charging, dcfc and parked flags")
	}
	if *rec.Speed != 0 {
		t.Fatalf("expected speed 0.4 to round to 0, got %v", *rec.Speed)
	}
}

func TestBuildOmitsUnsupportedSignals(t *testing.T) {
	values := fullSignals()
	delete(values, SignalSOH)
	delete(values, SignalNominalVoltage)
	delete(values, SignalChargeState)

	rec := newTestMapper(values).Build(context.Background())

	if rec.SOH != nil {
		t.Fatalf("expected soh omitted")
	}
	if rec.Capacity != nil {
		t.Fatalf("expected capacity omitted when one constituent is missing")
	}
	if rec.IsCharging != nil || rec.IsDCFC != nil {
		t.Fatalf("expected charging flags omitted without charge state")
	}

	encoded, err := rec.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var fields map[string]any
	_ = json.Unmarshal([]byte(encoded), &fields)
	for _, k := range []string{"soh", "capacity", "is_charging", "is_dcfc"} {
		if _, ok := fields[k]; ok {
			t.Fatalf("expected %s absent from payload %s", k, encoded)
		}
	}
}

func TestChargingStateDerivation(t *testing.T) {
	cases := []struct {
		state    string
		mode     string
		charging bool
		dcfc     *bool
	}{
		{"charging", "standard", true, models.Bool(false)},
		{"topoff", "performance", true, models.Bool(true)},
		{"done", "performance", false, nil},
		{"stopped", "standard", false, nil},
		{"", "", false, nil},
	}
	m := newTestMapper(nil)
	for _, tc := range cases {
		rec := m.BuildFrom("", signals.Snapshot{SignalChargeState: tc.state, SignalChargeMode: tc.mode})
		if rec.IsCharging == nil || *rec.IsCharging != tc.charging {
			t.Fatalf("state %q: expected charging=%v, got %v", tc.state, tc.charging, rec.IsCharging)
		}
		if !models.EqualBool(rec.IsDCFC, tc.dcfc) {
			t.Fatalf("state %q mode %q: unexpected dcfc %v", tc.state, tc.mode, rec.IsDCFC)
		}
	}
}

func TestLeafFamilyUsesInstrumentSignals(t *testing.T) {
	values := fullSignals()
	values[SignalVehicleType] = "NL"
	values[SignalLeafSOC] = 64.2
	values[SignalLeafSOH] = 88.0
	values[SignalLeafRange] = 150.0
	values[SignalIdealRange] = 160.0

	core, logs := observer.New(zapcore.DebugLevel)
	m := NewMapper(signals.NewAccessor(registry.NewMemoryRegistry(values), zap.NewNop()), zap.New(core))
	rec := m.Build(context.Background())

	resolved := logs.FilterMessage("vehicle family resolved").All()
	if len(resolved) != 1 || resolved[0].ContextMap()["family"] != "Nissan Leaf" {
		t.Fatalf("expected family name logged, got %v", logs.All())
	}
	if *rec.SOC != 64 || *rec.SOH != 88 {
		t.Fatalf("expected instrument soc/soh, got %v %v", *rec.SOC, *rec.SOH)
	}
	if *rec.EstBatteryRange != 150 {
		t.Fatalf("expected instrument range within tolerance, got %v", *rec.EstBatteryRange)
	}
}

func TestLeafRangeFallsBackToIdeal(t *testing.T) {
	m := newTestMapper(nil)

	rec := m.BuildFrom("NL", signals.Snapshot{SignalLeafRange: 100.0, SignalIdealRange: 111.0})
	if *rec.EstBatteryRange != 111 {
		t.Fatalf("expected ideal range when above 110%% of instrument, got %v", *rec.EstBatteryRange)
	}

	rec = m.BuildFrom("NL", signals.Snapshot{SignalLeafRange: 100.0, SignalIdealRange: 110.0})
	if *rec.EstBatteryRange != 100 {
		t.Fatalf("expected instrument range at exactly 110%%, got %v", *rec.EstBatteryRange)
	}

	rec = m.BuildFrom("NL", signals.Snapshot{SignalIdealRange: 90.0})
	if *rec.EstBatteryRange != 90 {
		t.Fatalf("expected ideal range without instrument, got %v", *rec.EstBatteryRange)
	}

	rec = m.BuildFrom("NL", signals.Snapshot{SignalEstRange: 90.0})
	if rec.EstBatteryRange != nil {
		t.Fatalf("leaf family must not read the generic range signal")
	}
}

func TestCustomFamilyTable(t *testing.T) {
	reg := registry.NewMemoryRegistry(map[string]any{
		SignalVehicleType: "XX",
		"xxx.soc":         55.0,
		SignalSOC:         10.0,
	})
	family := Family{ID: "XX", Overrides: map[Field]Resolver{FieldSOC: direct("xxx.soc")}}
	m := NewMapper(signals.NewAccessor(reg, zap.NewNop()), zap.NewNop(), WithFamilies(family))

	rec := m.Build(context.Background())
	if rec.SOC == nil || *rec.SOC != 55 {
		t.Fatalf("expected soc from registered family, got %v", rec.SOC)
	}
}

// Every field present in the record must be backed by a supported signal, and is_dcfc
// only ever appears next to is_charging=true.
func TestRandomSignalSubsetsNeverInventFields(t *testing.T) {
	all := fullSignals()
	names := make([]string, 0, len(all))
	for k := range all {
		names = append(names, k)
	}
	backing := map[string][]string{
		"utc": {SignalUTC}, "soc": {SignalSOC}, "power": {SignalPower}, "speed": {SignalSpeed},
		"lat": {SignalLatitude}, "lon": {SignalLongitude}, "is_charging": {SignalChargeState},
		"is_dcfc": {SignalChargeState, SignalChargeMode}, "is_parked": {SignalParkTime},
		"capacity": {SignalCAC, SignalNominalVoltage}, "kwh_charged": {SignalKwhCharged},
		"soh": {SignalSOH}, "heading": {SignalDirection}, "elevation": {SignalAltitude},
		"ext_temp": {SignalAmbientTemp}, "batt_temp": {SignalBatteryTemp}, "voltage": {SignalVoltage},
		"current": {SignalCurrent}, "odometer": {SignalOdometer}, "est_battery_range": {SignalEstRange},
	}

	m := newTestMapper(nil)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		snap := signals.Snapshot{}
		for _, n := range names {
			if rng.Intn(2) == 0 {
				snap[n] = all[n]
			}
		}
		if rng.Intn(2) == 0 {
			snap[SignalChargeState] = "done"
		}

		rec := m.BuildFrom("", snap)
		encoded, _ := rec.Encode()
		var fields map[string]any
		_ = json.Unmarshal([]byte(encoded), &fields)

		for field := range fields {
			for _, sig := range backing[field] {
				if !snap.Has(sig) {
					t.Fatalf("field %s present without signal %s: %s", field, sig, encoded)
				}
			}
		}
		if rec.IsDCFC != nil && !rec.Charging() {
			t.Fatalf("is_dcfc present while not charging: %s", encoded)
		}
	}
}

func TestSampleRequiresPowerAndSpeed(t *testing.T) {
	m := newTestMapper(map[string]any{SignalPower: -12.345, SignalSpeed: 42.0})
	s, ok := m.Sample(context.Background())
	if !ok || s.Power != -12.345 || s.Speed != 42 {
		t.Fatalf("expected raw sample, got %v %v", s, ok)
	}

	m = newTestMapper(map[string]any{SignalPower: 3.0})
	if _, ok := m.Sample(context.Background()); ok {
		t.Fatalf("expected no sample without speed")
	}
}

func TestNonFiniteSignalsAreOmitted(t *testing.T) {
	values := fullSignals()
	values[SignalSOC] = "nan"
	values[SignalBatteryTemp] = "inf"
	values[SignalVoltage] = "-Infinity"
	values[SignalAmbientTemp] = math.NaN()
	values[SignalCAC] = math.MaxFloat64
	rec := newTestMapper(values).Build(context.Background())

	if rec.SOC != nil || rec.BattTemp != nil || rec.Voltage != nil || rec.ExtTemp != nil {
		t.Fatalf("expected non-finite signals omitted, got soc=%v batt=%v volt=%v ext=%v",
			rec.SOC, rec.BattTemp, rec.Voltage, rec.ExtTemp)
	}
	if rec.Capacity != nil {
		t.Fatalf("expected overflowing capacity omitted, got %v", *rec.Capacity)
	}
	if rec.SOH == nil || rec.Power == nil {
		t.Fatalf("expected finite signals kept")
	}
	if _, err := rec.Encode(); err != nil {
		t.Fatalf("expected record to encode, got %v", err)
	}
	if policy.NewEvaluator(policy.DefaultParams()).IsSignificant(rec, rec) {
		t.Fatalf("expected identical records to be insignificant")
	}

	values[SignalUTC] = "inf"
	rec = newTestMapper(values).Build(context.Background())
	if rec.UTC != nil {
		t.Fatalf("expected infinite utc omitted, got %v", *rec.UTC)
	}
}
