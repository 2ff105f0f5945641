// Package controller runs one pass of the mixing-valve control loop:
// acquisition, decision, then relay cutoff, each on its own interval.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/floor-mixer/internal/gpio"
	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/logic"
	"github.com/sweeney/floor-mixer/internal/relay"
	"github.com/sweeney/floor-mixer/internal/sensor"
	"github.com/sweeney/floor-mixer/internal/status"
	"github.com/sweeney/floor-mixer/internal/timing"
)

// ErrFatal marks a fault the loop cannot recover from in place. The caller
// must run Fault and then Reset.
var ErrFatal = errors.New("controller: fatal fault")

// Config holds the loop cadence and control parameters.
type Config struct {
	ReadInterval   time.Duration
	CycleInterval  time.Duration
	RelayInterval  time.Duration
	Border         float64
	MaxBusFailures int
	FaultBlinks    int
	FaultBlink     time.Duration
}

// DefaultConfig returns the cadence the valve was commissioned with.
func DefaultConfig() Config {
	return Config{
		ReadInterval:   time.Second,
		CycleInterval:  10 * time.Second,
		RelayInterval:  100 * time.Millisecond,
		Border:         logic.DefaultBorder,
		MaxBusFailures: 5,
		FaultBlinks:    10,
		FaultBlink:     time.Second,
	}
}

// Result reports what a Tick did.
type Result struct {
	// Read is set when an acquisition pass completed; Temps holds its readings.
	Read  bool
	Temps sensor.Temperatures

	// BusErr is the failed bus-wide conversion, if any (not yet fatal).
	BusErr error

	// Decision is the control cycle evaluated this tick, if any.
	Decision *logic.Decision

	// CutOff names the relay the supervisor switched off, if any.
	CutOff string
}

// Controller owns the relays and the loop timers.
type Controller struct {
	cfg     Config
	acq     *sensor.Acquirer
	tracker *status.Tracker
	engine  logic.Engine
	up      *relay.Relay
	down    *relay.Relay
	led     gpio.Line
	log     *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	readIv  *timing.Interval
	cycleIv *timing.Interval
	relayIv *timing.Interval
	pulse   timing.Timeout

	busFailures int
}

// New creates a Controller whose intervals start at now(). led may be nil.
func New(cfg Config, acq *sensor.Acquirer, tracker *status.Tracker, up, down *relay.Relay, led gpio.Line, log *logger.Logger, now func() time.Time) *Controller {
	start := now()
	return &Controller{
		cfg:     cfg,
		acq:     acq,
		tracker: tracker,
		engine:  logic.NewEngine(cfg.Border),
		up:      up,
		down:    down,
		led:     led,
		log:     log,
		now:     now,
		sleep:   sleepCtx,
		readIv:  timing.NewInterval(cfg.ReadInterval, start),
		cycleIv: timing.NewInterval(cfg.CycleInterval, start),
		relayIv: timing.NewInterval(cfg.RelayInterval, start),
	}
}

// SetSleep replaces the sleep used by the LED patterns.
func (c *Controller) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}

// Tick runs whichever of acquisition, decision and cutoff are due, in that
// order. An error wrapping ErrFatal means the valve must be made safe.
func (c *Controller) Tick(ctx context.Context) (Result, error) {
	var res Result

	if c.readIv.Ready(c.now()) {
		if err := c.acquire(ctx, &res); err != nil {
			return res, err
		}
	}

	if c.cycleIv.Ready(c.now()) {
		if err := c.decide(&res); err != nil {
			return res, err
		}
	}

	now := c.now()
	if c.relayIv.Ready(now) && c.pulse.Ready(now) {
		if err := c.cutOff(&res); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (c *Controller) acquire(ctx context.Context, res *Result) error {
	temps, err := c.acq.Refresh(ctx, c.tracker.Temperatures())
	if err != nil {
		c.busFailures++
		res.BusErr = err
		c.log.Warnw("acquisition failed", "err", err, "consecutive", c.busFailures)
		if c.busFailures >= c.cfg.MaxBusFailures {
			return fmt.Errorf("%w: %d consecutive bus failures: %v", ErrFatal, c.busFailures, err)
		}
		return nil
	}

	c.busFailures = 0
	c.tracker.SetTemperatures(temps, c.now())
	res.Read = true
	res.Temps = temps
	c.log.Debugw("temperatures",
		"floor_mixed", temps[sensor.FloorMixed],
		"floor_cold", temps[sensor.FloorCold],
		"heating_hot", temps[sensor.HeatingHot],
		"battery_cold", temps[sensor.BatteryCold],
		"boiler", temps[sensor.Boiler],
		"street", temps[sensor.Street],
	)
	return nil
}

func (c *Controller) decide(res *Result) error {
	target, temps := c.tracker.Telemetry()
	now := c.now()

	d, ok := c.engine.Evaluate(temps[sensor.FloorMixed], target, now)
	if !ok {
		c.log.Debugw("mixed probe disconnected, skipping cycle")
		return nil
	}

	if err := c.apply(d, now); err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	c.tracker.RecordDecision(d)
	res.Decision = &d
	c.log.Infow("cycle", "state", d.State, "mixed", d.Mixed, "target", d.Target, "diff", d.Diff, "pulse", d.Pulse)
	return nil
}

// apply drives the relays for d. The opposite relay is always released
// before one is energised, so both are never on together.
func (c *Controller) apply(d logic.Decision, now time.Time) error {
	defer c.publishRelays()

	switch d.State {
	case logic.StateRaising:
		if err := c.down.Disable(); err != nil {
			return err
		}
		if err := c.up.Enable(); err != nil {
			return err
		}
		c.pulse.Start(d.Pulse, now)
	case logic.StateLowering:
		if err := c.up.Disable(); err != nil {
			return err
		}
		if err := c.down.Enable(); err != nil {
			return err
		}
		c.pulse.Start(d.Pulse, now)
	default:
		if err := c.up.Disable(); err != nil {
			return err
		}
		if err := c.down.Disable(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) cutOff(res *Result) error {
	defer c.publishRelays()

	for _, r := range []*relay.Relay{c.up, c.down} {
		if !r.IsEnabled() {
			continue
		}
		if err := r.Disable(); err != nil {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		res.CutOff = r.Name()
		c.log.Debugw("pulse complete", "relay", r.Name())
	}
	return nil
}

func (c *Controller) publishRelays() {
	up, down := c.Relays()
	var end time.Time
	if up || down {
		end = c.now().Add(c.PulseRemaining())
	}
	c.tracker.SetRelays(up, down, end)
}

// Fault makes the valve safe: both relays off, then the diagnostic blink
// pattern. It returns early if ctx is cancelled during the pattern.
func (c *Controller) Fault(ctx context.Context) {
	c.Release()
	c.Blink(ctx, c.cfg.FaultBlinks, c.cfg.FaultBlink)
}

// Release switches both relays off, trying each even if the other fails.
func (c *Controller) Release() {
	for _, r := range []*relay.Relay{c.up, c.down} {
		if err := r.Disable(); err != nil {
			c.log.Errorw("cannot release relay", "relay", r.Name(), "err", err)
		}
	}
	c.pulse = timing.Timeout{}
	c.publishRelays()
}

// Reset re-enters the power-on state: default setpoint, no readings, timers
// re-armed from now.
func (c *Controller) Reset() {
	c.tracker.Reset()
	start := c.now()
	c.readIv.Reset(start)
	c.cycleIv.Reset(start)
	c.relayIv.Reset(start)
	c.pulse = timing.Timeout{}
	c.busFailures = 0
}

// Blink flashes the status LED n times, each on and off for period.
func (c *Controller) Blink(ctx context.Context, n int, period time.Duration) {
	if c.led == nil {
		return
	}
	for i := 0; i < n; i++ {
		if err := c.led.SetValue(1); err != nil {
			c.log.Warnw("status led", "err", err)
			return
		}
		err := c.sleep(ctx, period)
		c.led.SetValue(0)
		if err != nil {
			return
		}
		if err := c.sleep(ctx, period); err != nil {
			return
		}
	}
}

// Relays reports the relay outputs.
func (c *Controller) Relays() (up, down bool) {
	return c.up.IsEnabled(), c.down.IsEnabled()
}

// PulseRemaining returns how long the current valve pulse has left.
func (c *Controller) PulseRemaining() time.Duration {
	return c.pulse.Remaining(c.now())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
