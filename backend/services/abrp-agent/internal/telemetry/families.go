package telemetry

import "abrplink/backend/services/abrp-agent/internal/signals"

// Field is a canonical telemetry field name.
type Field string

const (
	FieldUTC             Field = "utc"
	FieldSOC             Field = "soc"
	FieldPower           Field = "power"
	FieldSpeed           Field = "speed"
	FieldLat             Field = "lat"
	FieldLon             Field = "lon"
	FieldCapacity        Field = "capacity"
	FieldKwhCharged      Field = "kwh_charged"
	FieldSOH             Field = "soh"
	FieldHeading         Field = "heading"
	FieldElevation       Field = "elevation"
	FieldExtTemp         Field = "ext_temp"
	FieldBattTemp        Field = "batt_temp"
	FieldVoltage         Field = "voltage"
	FieldCurrent         Field = "current"
	FieldOdometer        Field = "odometer"
	FieldEstBatteryRange Field = "est_battery_range"
)

// Resolver derives one numeric field from a snapshot. Signals lists every registry name
// the resolver may read so the mapper can fetch them in a single round trip.
type Resolver struct {
	Signals []string
	Resolve func(signals.Snapshot) (float64, bool)
}

// Family overrides the generic resolvers for one vehicle type (the v.type value).
type Family struct {
	ID        string
	Name      string
	Overrides map[Field]Resolver
}

// leafRangeTolerance: above this ratio the ideal range wins over the instrument range.
// The instrument value freezes when the car is charged after being parked.
const leafRangeTolerance = 1.1

func direct(name string) Resolver {
	return Resolver{
		Signals: []string{name},
		Resolve: func(s signals.Snapshot) (float64, bool) { return s.Float(name) },
	}
}

func genericResolvers() map[Field]Resolver {
	return map[Field]Resolver{
		FieldUTC:   direct(SignalUTC),
		FieldSOC:   direct(SignalSOC),
		FieldPower: direct(SignalPower),
		FieldSpeed: direct(SignalSpeed),
		FieldLat:   direct(SignalLatitude),
		FieldLon:   direct(SignalLongitude),
		FieldCapacity: {
			Signals: []string{SignalCAC, SignalNominalVoltage},
			Resolve: func(s signals.Snapshot) (float64, bool) {
				v, ok := s.Floats(SignalCAC, SignalNominalVoltage)
				if !ok {
					return 0, false
				}
				return v[0] * v[1] / 1000, true
			},
		},
		FieldKwhCharged:      direct(SignalKwhCharged),
		FieldSOH:             direct(SignalSOH),
		FieldHeading:         direct(SignalDirection),
		FieldElevation:       direct(SignalAltitude),
		FieldExtTemp:         direct(SignalAmbientTemp),
		FieldBattTemp:        direct(SignalBatteryTemp),
		FieldVoltage:         direct(SignalVoltage),
		FieldCurrent:         direct(SignalCurrent),
		FieldOdometer:        direct(SignalOdometer),
		FieldEstBatteryRange: direct(SignalEstRange),
	}
}

// DefaultFamilies returns the vehicle families known out of the box.
func DefaultFamilies() []Family {
	return []Family{
		{
			ID:   "NL",
			Name: "Nissan Leaf",
			Overrides: map[Field]Resolver{
				FieldSOC: direct(SignalLeafSOC),
				FieldSOH: direct(SignalLeafSOH),
				FieldEstBatteryRange: {
					Signals: []string{SignalLeafRange, SignalIdealRange},
					Resolve: leafRange,
				},
			},
		},
	}
}

func leafRange(s signals.Snapshot) (float64, bool) {
	ideal, idealOK := s.Float(SignalIdealRange)
	instrument, ok := s.Float(SignalLeafRange)
	if !ok {
		return ideal, idealOK
	}
	if idealOK && ideal > instrument*leafRangeTolerance {
		return ideal, true
	}
	return instrument, true
}
