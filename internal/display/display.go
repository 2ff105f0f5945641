// Package display renders the controller state on an optional local panel.
package display

import (
	"fmt"
	"time"

	"github.com/sweeney/floor-mixer/internal/sensor"
)

// Reading is what the panel shows after each acquisition pass.
type Reading struct {
	Target float64
	Temps  sensor.Temperatures
	Pulse  time.Duration // last valve pulse; zero when holding
}

// Display is a local output device. Implementations must not block the
// control loop for long; errors are logged by the caller and otherwise ignored.
type Display interface {
	Show(r Reading) error
	Close() error
}

// Nop is the Display used when no panel is fitted.
type Nop struct{}

// Show does nothing.
func (Nop) Show(Reading) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Lines lays the reading out as the panel rows: the target and pulse
// seconds on top, then mixed, hot, cold, and street at the bottom right.
func Lines(r Reading) [4]string {
	top := formatTemp(r.Target)
	if r.Pulse > 0 {
		top = fmt.Sprintf("%-7s %d", top, int(r.Pulse/time.Second))
	}
	return [4]string{
		top,
		formatTemp(r.Temps[sensor.FloorMixed]),
		formatTemp(r.Temps[sensor.HeatingHot]),
		fmt.Sprintf("%-7s %s", formatTemp(r.Temps[sensor.FloorCold]), formatTemp(r.Temps[sensor.Street])),
	}
}

func formatTemp(c float64) string {
	if c == sensor.Disconnected {
		return "--.-C"
	}
	return fmt.Sprintf("%.1fC", c)
}
