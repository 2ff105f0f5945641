// Package relay drives the valve direction relays.
package relay

import (
	"fmt"
	"sync"

	"github.com/sweeney/floor-mixer/internal/gpio"
)

// Relay is a stateful on/off output. Enable and Disable are idempotent:
// repeating the current state never touches the line.
type Relay struct {
	name string
	line gpio.Line

	mu      sync.Mutex
	enabled bool
}

// New creates a disabled relay on line. The line is assumed to already be
// inactive (gpio outputs are requested inactive).
func New(name string, line gpio.Line) *Relay {
	return &Relay{name: name, line: line}
}

// Name returns the relay's name, e.g. "up".
func (r *Relay) Name() string {
	return r.name
}

// Enable energises the relay.
func (r *Relay) Enable() error {
	return r.set(true)
}

// Disable de-energises the relay.
func (r *Relay) Disable() error {
	return r.set(false)
}

// IsEnabled reports the last successfully applied state.
func (r *Relay) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Relay) set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled == on {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("relay %s: set %d: %w", r.name, v, err)
	}
	r.enabled = on
	return nil
}
