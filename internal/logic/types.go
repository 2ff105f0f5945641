// Package logic contains the pure valve control decisions.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State is the direction the valve is being driven in.
type State string

const (
	StateHolding  State = "HOLDING"
	StateRaising  State = "RAISING"
	StateLowering State = "LOWERING"
)

// Decision is the outcome of one control cycle.
type Decision struct {
	At     time.Time
	State  State
	Mixed  float64 // measured floor-mixed temperature, °C
	Target float64 // floor target, °C
	Border float64 // hysteresis half-width, °C
	Diff   float64 // clamped error magnitude beyond the border, °C; 0 when holding
	Pulse  time.Duration
}

// Counts tracks how many cycles ended in each state since startup.
type Counts struct {
	Raising  int
	Lowering int
	Holding  int
}

// Add counts one decision.
func (c *Counts) Add(s State) {
	switch s {
	case StateRaising:
		c.Raising++
	case StateLowering:
		c.Lowering++
	case StateHolding:
		c.Holding++
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
