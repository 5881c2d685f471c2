package models

import "encoding/json"

// TelemetryRecord is the payload ABRP receives in the tlm query parameter.
// Every field is optional: nil means the vehicle does not report the signal and the
// field is left out of the JSON entirely.
type TelemetryRecord struct {
	UTC             *int64   `json:"utc,omitempty"`
	SOC             *float64 `json:"soc,omitempty"`
	Power           *float64 `json:"power,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lon             *float64 `json:"lon,omitempty"`
	IsCharging      *bool    `json:"is_charging,omitempty"`
	IsDCFC          *bool    `json:"is_dcfc,omitempty"`
	IsParked        *bool    `json:"is_parked,omitempty"`
	Capacity        *float64 `json:"capacity,omitempty"`
	KwhCharged      *float64 `json:"kwh_charged,omitempty"`
	SOH             *float64 `json:"soh,omitempty"`
	Heading         *float64 `json:"heading,omitempty"`
	Elevation       *float64 `json:"elevation,omitempty"`
	ExtTemp         *float64 `json:"ext_temp,omitempty"`
	BattTemp        *float64 `json:"batt_temp,omitempty"`
	Voltage         *float64 `json:"voltage,omitempty"`
	Current         *float64 `json:"current,omitempty"`
	Odometer        *float64 `json:"odometer,omitempty"`
	EstBatteryRange *float64 `json:"est_battery_range,omitempty"`
}

// Sample is one high-rate power/speed reading.
type Sample struct {
	Power float64 `json:"power"`
	Speed float64 `json:"speed"`
}

// Charging reports whether the record says the vehicle is charging.
func (r TelemetryRecord) Charging() bool {
	return r.IsCharging != nil && *r.IsCharging
}

// FastCharging reports DC fast charging.
func (r TelemetryRecord) FastCharging() bool {
	return r.Charging() && r.IsDCFC != nil && *r.IsDCFC
}

// Parked treats a missing is_parked as not parked.
func (r TelemetryRecord) Parked() bool {
	return r.IsParked != nil && *r.IsParked
}

// Timestamp returns utc, or fallback when the vehicle clock is not reported.
func (r TelemetryRecord) Timestamp(fallback int64) int64 {
	if r.UTC == nil {
		return fallback
	}
	return *r.UTC
}

// Encode returns the JSON form sent to ABRP.
func (r TelemetryRecord) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

// EqualFloat compares two optional values; two nils are equal.
func EqualFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EqualBool compares two optional flags; two nils are equal.
func EqualBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
