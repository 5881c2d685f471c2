package telemetry

// Registry signal names (OVMS metric naming).
const (
	SignalVehicleType    = "v.type"
	SignalUTC            = "m.time.utc"
	SignalSOC            = "v.b.soc"
	SignalPower          = "v.b.power"
	SignalSpeed          = "v.p.speed"
	SignalLatitude       = "v.p.latitude"
	SignalLongitude      = "v.p.longitude"
	SignalChargeState    = "v.c.state"
	SignalChargeMode     = "v.c.mode"
	SignalParkTime       = "v.e.parktime"
	SignalCAC            = "v.b.cac"
	SignalNominalVoltage = "v.b.voltage.nominal"
	SignalKwhCharged     = "v.c.kwh"
	SignalSOH            = "v.b.soh"
	SignalDirection      = "v.p.direction"
	SignalAltitude       = "v.p.altitude"
	SignalAmbientTemp    = "v.e.temp"
	SignalBatteryTemp    = "v.b.temp"
	SignalVoltage        = "v.b.voltage"
	SignalCurrent        = "v.b.current"
	SignalOdometer       = "v.p.odometer"
	SignalEstRange       = "v.b.range.est"
	SignalIdealRange     = "v.b.range.ideal"

	SignalLeafSOC   = "xnl.v.b.soc.instrument"
	SignalLeafSOH   = "xnl.v.b.soh.instrument"
	SignalLeafRange = "xnl.v.b.range.instrument"
)

// ChargeModeFast is the v.c.mode value reported while DC fast charging.
const ChargeModeFast = "performance"

// activeChargeStates are the v.c.state values that count as charging. The v.c.charging
// flag is not used because it is also raised during regenerative braking.
var activeChargeStates = map[string]struct{}{
	"charging": {},
	"topoff":   {},
}

// IsActiveChargeState reports whether state means energy is flowing into the pack.
func IsActiveChargeState(state string) bool {
	_, ok := activeChargeStates[state]
	return ok
}
