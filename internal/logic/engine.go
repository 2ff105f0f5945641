package logic

import (
	"math"
	"time"
)

// Control defaults.
const (
	DefaultBorder   = 0.1
	DefaultMaxDiff  = 2.0
	DefaultMapMax   = 3.0
	DefaultMinPulse = 1000 * time.Millisecond
	DefaultMaxPulse = 7000 * time.Millisecond
)

// Disconnected mirrors sensor.Disconnected; logic cannot import sensor.
const Disconnected = -127.0

// Engine turns a mixed-water reading into a valve pulse.
//
// Outside the dead band [target-border, target+border] the valve is driven
// towards the target for a time that grows linearly with the error: the error
// is clamped to [Border, MaxDiff] and mapped from [Border, MapMax] onto
// [MinPulse, MaxPulse].
type Engine struct {
	Border   float64
	MaxDiff  float64
	MapMax   float64
	MinPulse time.Duration
	MaxPulse time.Duration
}

// NewEngine returns an Engine with the default pulse mapping.
func NewEngine(border float64) Engine {
	return Engine{
		Border:   border,
		MaxDiff:  DefaultMaxDiff,
		MapMax:   DefaultMapMax,
		MinPulse: DefaultMinPulse,
		MaxPulse: DefaultMaxPulse,
	}
}

// Evaluate decides what to do for one cycle. It returns false when mixed is
// Disconnected: no data, no transition.
func (e Engine) Evaluate(mixed, target float64, at time.Time) (Decision, bool) {
	if mixed == Disconnected {
		return Decision{}, false
	}

	d := Decision{
		At:     at,
		State:  StateHolding,
		Mixed:  mixed,
		Target: target,
		Border: e.Border,
	}

	switch {
	case mixed < target-e.Border:
		d.State = StateRaising
		d.Diff = Clamp(target-e.Border-mixed, e.Border, e.MaxDiff)
		d.Pulse = e.PulseFor(d.Diff)
	case mixed > target+e.Border:
		d.State = StateLowering
		d.Diff = Clamp(mixed-target-e.Border, e.Border, e.MaxDiff)
		d.Pulse = e.PulseFor(d.Diff)
	}
	return d, true
}

// PulseFor maps an error magnitude onto a relay on-time, rounded to the
// millisecond and bounded by [MinPulse, MaxPulse].
func (e Engine) PulseFor(diff float64) time.Duration {
	ms := MapRange(diff, e.Border, e.MapMax,
		float64(e.MinPulse.Milliseconds()), float64(e.MaxPulse.Milliseconds()))
	p := time.Duration(math.Round(ms)) * time.Millisecond
	if p < e.MinPulse {
		return e.MinPulse
	}
	if p > e.MaxPulse {
		return e.MaxPulse
	}
	return p
}

// MapRange linearly maps x from [inMin, inMax] onto [outMin, outMax].
// x outside the input range extrapolates.
func MapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
