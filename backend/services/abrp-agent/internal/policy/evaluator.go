package policy

import (
	"math"
	"time"

	"abrplink/backend/services/abrp-agent/internal/models"
)

// Rule names the policy branch that produced an interval.
type Rule string

const (
	RuleSignificant Rule = "significant"
	RuleCalibration Rule = "calibration"
	RuleLive        Rule = "live"
	RuleCharging    Rule = "charging"
	RuleIdle        Rule = "idle"
)

// Params holds the tunable thresholds of the send policy.
type Params struct {
	// PowerTolerance is the kW change in rounded power that counts as significant while
	// charging. Zero means any change.
	PowerTolerance      float64       `yaml:"powerTolerance"`
	CalibrationSpeedKmh float64       `yaml:"calibrationSpeedKmh"`
	CalibrationInterval time.Duration `yaml:"calibrationInterval"`
	// LiveInterval stays under ABRP's ~160 s window after which a session is no longer live.
	LiveInterval     time.Duration `yaml:"liveInterval"`
	ChargingInterval time.Duration `yaml:"chargingInterval"`
	IdleInterval     time.Duration `yaml:"idleInterval"`
}

// DefaultParams returns the current policy values.
func DefaultParams() Params {
	return Params{
		PowerTolerance:      0,
		CalibrationSpeedKmh: 70,
		CalibrationInterval: 5 * time.Second,
		LiveInterval:        150 * time.Second,
		ChargingInterval:    30 * time.Minute,
		IdleInterval:        24 * time.Hour,
	}
}

// WithDefaults fills zero durations and thresholds from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.CalibrationSpeedKmh <= 0 {
		p.CalibrationSpeedKmh = d.CalibrationSpeedKmh
	}
	if p.CalibrationInterval <= 0 {
		p.CalibrationInterval = d.CalibrationInterval
	}
	if p.LiveInterval <= 0 {
		p.LiveInterval = d.LiveInterval
	}
	if p.ChargingInterval <= 0 {
		p.ChargingInterval = d.ChargingInterval
	}
	if p.IdleInterval <= 0 {
		p.IdleInterval = d.IdleInterval
	}
	if p.PowerTolerance < 0 {
		p.PowerTolerance = 0
	}
	return p
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Significant bool
	Rule        Rule
	MaxInterval time.Duration
	Elapsed     time.Duration
	Send        bool
}

// Evaluator decides when accumulated telemetry is worth a transmission.
type Evaluator struct {
	params Params
}

// NewEvaluator returns evaluator with params (zero fields take defaults).
func NewEvaluator(params Params) *Evaluator {
	return &Evaluator{params: params.WithDefaults()}
}

// Params returns the effective parameters.
func (e *Evaluator) Params() Params {
	return e.params
}

// IsSignificant reports a change that must reach ABRP right away.
func (e *Evaluator) IsSignificant(current, previous models.TelemetryRecord) bool {
	if !models.EqualFloat(current.SOC, previous.SOC) {
		return true
	}
	if !models.EqualBool(current.IsCharging, previous.IsCharging) {
		return true
	}
	if !models.EqualBool(current.IsParked, previous.IsParked) {
		return true
	}
	if current.Charging() {
		cur := models.Round(current.Power, models.PrecisionPower)
		prev := models.Round(previous.Power, models.PrecisionPower)
		if cur == nil || prev == nil {
			return !models.EqualFloat(cur, prev)
		}
		return math.Abs(*cur-*prev) > e.params.PowerTolerance
	}
	return false
}

// MaxAllowedInterval returns how long the agent may wait since the last send, first
// matching rule wins.
func (e *Evaluator) MaxAllowedInterval(current, previous models.TelemetryRecord) time.Duration {
	interval, _ := e.classify(current, previous)
	return interval
}

// Evaluate combines significance, interval and elapsed time into a send decision.
func (e *Evaluator) Evaluate(current, previous models.TelemetryRecord, elapsed time.Duration) Decision {
	interval, rule := e.classify(current, previous)
	return Decision{
		Significant: rule == RuleSignificant,
		Rule:        rule,
		MaxInterval: interval,
		Elapsed:     elapsed,
		Send:        elapsed >= interval,
	}
}

func (e *Evaluator) classify(current, previous models.TelemetryRecord) (time.Duration, Rule) {
	switch {
	case e.IsSignificant(current, previous):
		return 0, RuleSignificant
	case current.Speed != nil && *current.Speed > e.params.CalibrationSpeedKmh:
		return e.params.CalibrationInterval, RuleCalibration
	case !current.Parked() || current.FastCharging():
		return e.params.LiveInterval, RuleLive
	case current.Charging():
		return e.params.ChargingInterval, RuleCharging
	default:
		return e.params.IdleInterval, RuleIdle
	}
}
