// Package status holds the controller state shared between the control loop
// and the asynchronous readers and writers (MQTT callbacks, HTTP handlers).
//
// Every multi-field update and every read happens under one lock, so a reader
// never sees temperatures from two different acquisition passes and a
// setpoint write is either fully applied or not at all.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/floor-mixer/internal/logic"
	"github.com/sweeney/floor-mixer/internal/sensor"
)

// Accepted setpoint range, °C inclusive.
const (
	MinTarget = 10.0
	MaxTarget = 45.0
)

// DefaultTarget is the setpoint after startup and after a fault reset.
const DefaultTarget = 25.0

// ValidTarget reports whether c may be used as a setpoint.
func ValidTarget(c float64) bool {
	return c >= MinTarget && c <= MaxTarget
}

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	CycleMs     int64
	ReadMs      int64
	RelayMs     int64
	Border      float64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of controller state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Target        float64
	Temps         sensor.Temperatures
	ReadAt        time.Time // time of the acquisition pass that produced Temps
	Ready         bool      // at least one acquisition pass completed
	State         logic.State
	LastDecision  logic.Decision
	HasDecision   bool
	RelayUp       bool
	RelayDown     bool
	PulseEnd      time.Time // when the running valve pulse ends; zero when idle
	Counts        logic.Counts
	Faults        int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// PulseRemaining returns how long the running valve pulse has left at Now.
func (s Snapshot) PulseRemaining() time.Duration {
	if !s.RelayUp && !s.RelayDown {
		return 0
	}
	if !s.PulseEnd.After(s.Now) {
		return 0
	}
	return s.PulseEnd.Sub(s.Now)
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the default setpoint and every channel
// Disconnected.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Target:    DefaultTarget,
			Temps:     sensor.NewTemperatures(),
			State:     logic.StateHolding,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Target returns the current setpoint.
func (t *Tracker) Target() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Target
}

// SetTarget replaces the setpoint if c is within [MinTarget, MaxTarget].
// Out-of-range values are ignored and the previous setpoint is kept.
func (t *Tracker) SetTarget(c float64) bool {
	if !ValidTarget(c) {
		return false
	}
	t.mu.Lock()
	t.snap.Target = c
	t.mu.Unlock()
	return true
}

// Temperatures returns the latest complete set of readings.
func (t *Tracker) Temperatures() sensor.Temperatures {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Temps
}

// SetTemperatures replaces all readings at once.
func (t *Tracker) SetTemperatures(temps sensor.Temperatures, at time.Time) {
	t.mu.Lock()
	t.snap.Temps = temps
	t.snap.ReadAt = at
	t.snap.Ready = true
	t.mu.Unlock()
}

// Telemetry returns the setpoint and readings as one consistent record.
func (t *Tracker) Telemetry() (target float64, temps sensor.Temperatures) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Target, t.snap.Temps
}

// RecordDecision stores the outcome of a control cycle.
func (t *Tracker) RecordDecision(d logic.Decision) {
	t.mu.Lock()
	t.snap.State = d.State
	t.snap.LastDecision = d
	t.snap.HasDecision = true
	t.snap.Counts.Add(d.State)
	t.mu.Unlock()
}

// SetRelays records the relay outputs and when the running pulse ends.
func (t *Tracker) SetRelays(up, down bool, pulseEnd time.Time) {
	t.mu.Lock()
	t.snap.RelayUp = up
	t.snap.RelayDown = down
	t.snap.PulseEnd = pulseEnd
	t.mu.Unlock()
}

// Reset returns the controller state to power-on defaults after a fault.
// Counters, start time, connectivity and config survive.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.snap.Target = DefaultTarget
	t.snap.Temps = sensor.NewTemperatures()
	t.snap.ReadAt = time.Time{}
	t.snap.Ready = false
	t.snap.State = logic.StateHolding
	t.snap.LastDecision = logic.Decision{}
	t.snap.HasDecision = false
	t.snap.RelayUp = false
	t.snap.RelayDown = false
	t.snap.PulseEnd = time.Time{}
	t.snap.Faults++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
