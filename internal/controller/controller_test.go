package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/floor-mixer/internal/gpio"
	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/logic"
	"github.com/sweeney/floor-mixer/internal/relay"
	"github.com/sweeney/floor-mixer/internal/sensor"
	"github.com/sweeney/floor-mixer/internal/status"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// pairedLine watches both relay lines and records any instant where both
// are driven high.
type pairedLine struct {
	mu        sync.Mutex
	values    [2]int
	violation bool
}

type pairedHalf struct {
	p   *pairedLine
	idx int
	err error
}

func (h *pairedHalf) SetValue(v int) error {
	if h.err != nil {
		return h.err
	}
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.p.values[h.idx] = v
	if h.p.values[0] == 1 && h.p.values[1] == 1 {
		h.p.violation = true
	}
	return nil
}

type rig struct {
	clock   *fakeClock
	bus     *sensor.FakeBus
	tracker *status.Tracker
	upLine  *pairedHalf
	dnLine  *pairedHalf
	lines   *pairedLine
	led     *gpio.FakeLine
	ctrl    *Controller
}

func newRig(t *testing.T, temps sensor.Temperatures) *rig {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)}

	bus := sensor.NewFakeBus()
	bus.SetAll(sensor.DefaultAddresses, temps)
	acq := sensor.NewAcquirer(bus, sensor.DefaultAddresses, 0, logger.Nop())
	acq.SetClock(clock.Now, clock.Sleep)

	lines := &pairedLine{}
	up := &pairedHalf{p: lines, idx: 0}
	dn := &pairedHalf{p: lines, idx: 1}
	led := gpio.NewFakeLine()
	tracker := status.NewTracker(clock.Now(), status.Config{})

	ctrl := New(DefaultConfig(), acq, tracker, relay.New("up", up), relay.New("down", dn), led, logger.Nop(), clock.Now)
	ctrl.SetSleep(clock.Sleep)

	return &rig{clock: clock, bus: bus, tracker: tracker, upLine: up, dnLine: dn, lines: lines, led: led, ctrl: ctrl}
}

func temps(mixed float64) sensor.Temperatures {
	return sensor.Temperatures{
		sensor.FloorMixed:  mixed,
		sensor.FloorCold:   22.0,
		sensor.HeatingHot:  55.0,
		sensor.BatteryCold: 40.0,
		sensor.Boiler:      60.0,
		sensor.Street:      5.0,
	}
}

// runUntil ticks every step until the clock reaches end, collecting results.
func (r *rig) runUntil(t *testing.T, end time.Time, step time.Duration) []Result {
	t.Helper()
	var out []Result
	for r.clock.now.Before(end) {
		r.clock.Advance(step)
		res, err := r.ctrl.Tick(context.Background())
		if err != nil {
			t.Fatalf("Tick at %v: %v", r.clock.now, err)
		}
		out = append(out, res)
	}
	return out
}

func TestRaisingPulseEndToEnd(t *testing.T) {
	r := newRig(t, temps(24.5))
	start := r.clock.now

	var decidedAt time.Time
	var decision logic.Decision
	var cutAt time.Time
	for r.clock.now.Sub(start) < 15*time.Second {
		r.clock.Advance(50 * time.Millisecond)
		res, err := r.ctrl.Tick(context.Background())
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if res.Decision != nil && decidedAt.IsZero() {
			decidedAt = r.clock.now
			decision = *res.Decision
		}
		if res.CutOff != "" && cutAt.IsZero() {
			if res.CutOff != "up" {
				t.Errorf("expected up relay cut off, got %q", res.CutOff)
			}
			cutAt = r.clock.now
		}
	}

	if decidedAt.IsZero() {
		t.Fatal("no decision within 15s")
	}
	if got := decidedAt.Sub(start); got != 10*time.Second {
		t.Errorf("first decision after %v, want 10s", got)
	}
	if decision.State != logic.StateRaising {
		t.Errorf("expected RAISING, got %s", decision.State)
	}
	if decision.Pulse != 1621*time.Millisecond {
		t.Errorf("expected 1621ms pulse, got %v", decision.Pulse)
	}
	if cutAt.IsZero() {
		t.Fatal("up relay never cut off")
	}
	late := cutAt.Sub(decidedAt) - decision.Pulse
	if late < 0 || late > 100*time.Millisecond {
		t.Errorf("cut off %v after pulse end, want within 100ms", late)
	}

	snap := r.tracker.Snapshot()
	if snap.RelayUp || snap.RelayDown {
		t.Error("both relays should be off after the pulse")
	}
	if snap.State != logic.StateRaising {
		t.Errorf("tracker state %s, want RAISING", snap.State)
	}
	if r.lines.violation {
		t.Error("both relays were on at once")
	}
}

func TestLoweringDrivesDownRelay(t *testing.T) {
	r := newRig(t, temps(26.0))
	results := r.runUntil(t, r.clock.now.Add(10*time.Second), 100*time.Millisecond)

	last := results[len(results)-1]
	if last.Decision == nil || last.Decision.State != logic.StateLowering {
		t.Fatalf("expected LOWERING decision on the 10s tick, got %+v", last.Decision)
	}
	up, down := r.ctrl.Relays()
	if up || !down {
		t.Errorf("relays up=%v down=%v, want down only", up, down)
	}
	if r.ctrl.PulseRemaining() != last.Decision.Pulse {
		t.Errorf("pulse remaining %v, want %v", r.ctrl.PulseRemaining(), last.Decision.Pulse)
	}
	snap := r.tracker.Snapshot()
	if want := r.clock.now.Add(last.Decision.Pulse); !snap.PulseEnd.Equal(want) {
		t.Errorf("tracker pulse end %v, want %v", snap.PulseEnd, want)
	}

	// Once cut off the tracker no longer reports a running pulse.
	r.runUntil(t, r.clock.now.Add(last.Decision.Pulse+100*time.Millisecond), 100*time.Millisecond)
	if snap := r.tracker.Snapshot(); snap.RelayDown || !snap.PulseEnd.IsZero() {
		t.Errorf("after cutoff: down=%v pulse end %v", snap.RelayDown, snap.PulseEnd)
	}
}

func TestDirectionReversalNeverOverlaps(t *testing.T) {
	r := newRig(t, temps(20.0))
	r.runUntil(t, r.clock.now.Add(10*time.Second), time.Second)
	if up, _ := r.ctrl.Relays(); !up {
		t.Fatal("expected up relay on after first cycle")
	}

	// Flip direction while the up pulse is still running.
	r.bus.SetAll(sensor.DefaultAddresses, temps(30.0))
	r.clock.Advance(10 * time.Second)
	if _, err := r.ctrl.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	up, down := r.ctrl.Relays()
	if up || !down {
		t.Errorf("relays up=%v down=%v, want down only", up, down)
	}
	if r.lines.violation {
		t.Error("both relays were on at once")
	}
}

func TestHoldingDisablesBoth(t *testing.T) {
	r := newRig(t, temps(25.05))
	results := r.runUntil(t, r.clock.now.Add(10*time.Second), time.Second)

	last := results[len(results)-1]
	if last.Decision == nil || last.Decision.State != logic.StateHolding {
		t.Fatalf("expected HOLDING, got %+v", last.Decision)
	}
	if last.Decision.Pulse != 0 {
		t.Errorf("holding pulse %v, want 0", last.Decision.Pulse)
	}
	if up, down := r.ctrl.Relays(); up || down {
		t.Error("holding should leave both relays off")
	}
}

func TestDisconnectedMixedTakesNoAction(t *testing.T) {
	r := newRig(t, temps(sensor.Disconnected))
	results := r.runUntil(t, r.clock.now.Add(30*time.Second), time.Second)

	for _, res := range results {
		if res.Decision != nil {
			t.Fatalf("unexpected decision %+v", res.Decision)
		}
	}
	if up, down := r.ctrl.Relays(); up || down {
		t.Error("relays must stay off without a mixed reading")
	}
	if r.tracker.Snapshot().HasDecision {
		t.Error("tracker should not record a decision")
	}
}

func TestRemoteSetpointChangesDirection(t *testing.T) {
	r := newRig(t, temps(30.0))
	r.tracker.SetTarget(35.0)

	results := r.runUntil(t, r.clock.now.Add(10*time.Second), time.Second)
	last := results[len(results)-1]
	if last.Decision == nil || last.Decision.State != logic.StateRaising {
		t.Fatalf("expected RAISING against 35°C setpoint, got %+v", last.Decision)
	}
	// The error saturates at MaxDiff.
	want := logic.NewEngine(logic.DefaultBorder).PulseFor(logic.DefaultMaxDiff)
	if last.Decision.Pulse != want {
		t.Errorf("pulse %v, want saturated %v", last.Decision.Pulse, want)
	}
}

func TestBusStallBecomesFatal(t *testing.T) {
	r := newRig(t, temps(24.0))
	r.bus.RequestAllError = errors.New("bus stuck low")

	var fatal error
	for i := 0; i < 10 && fatal == nil; i++ {
		r.clock.Advance(time.Second)
		res, err := r.ctrl.Tick(context.Background())
		if err != nil {
			fatal = err
			break
		}
		if res.BusErr == nil {
			t.Fatalf("tick %d: expected bus error", i)
		}
	}
	if !errors.Is(fatal, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", fatal)
	}
	if r.bus.RequestAllCalls != DefaultConfig().MaxBusFailures {
		t.Errorf("fatal after %d stalls, want %d", r.bus.RequestAllCalls, DefaultConfig().MaxBusFailures)
	}
}

func TestBusRecoveryResetsFailureCount(t *testing.T) {
	r := newRig(t, temps(25.0))
	stall := errors.New("stall")

	for i := 0; i < 20; i++ {
		if i%4 == 3 {
			r.bus.RequestAllError = nil
		} else {
			r.bus.RequestAllError = stall
		}
		r.clock.Advance(time.Second)
		if _, err := r.ctrl.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: intermittent stalls should not be fatal: %v", i, err)
		}
	}
}

func TestRelayErrorIsFatal(t *testing.T) {
	r := newRig(t, temps(20.0))
	r.upLine.err = errors.New("line gone")

	r.clock.Advance(10 * time.Second)
	_, err := r.ctrl.Tick(context.Background())
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
}

func TestFaultAndReset(t *testing.T) {
	r := newRig(t, temps(20.0))
	r.tracker.SetTarget(30.0)
	r.runUntil(t, r.clock.now.Add(10*time.Second), time.Second)
	if up, _ := r.ctrl.Relays(); !up {
		t.Fatal("expected up relay on before the fault")
	}

	before := r.clock.now
	r.ctrl.Fault(context.Background())
	r.ctrl.Reset()

	if up, down := r.ctrl.Relays(); up || down {
		t.Error("fault must release both relays")
	}
	if r.lines.values != [2]int{0, 0} {
		t.Errorf("relay lines %v, want both 0", r.lines.values)
	}

	cfg := DefaultConfig()
	if got, want := r.led.Writes(), 2*cfg.FaultBlinks; got != want {
		t.Errorf("led writes %d, want %d", got, want)
	}
	if r.led.Value() != 0 {
		t.Error("led should end off")
	}
	if got, want := r.clock.now.Sub(before), 2*time.Duration(cfg.FaultBlinks)*cfg.FaultBlink; got != want {
		t.Errorf("pattern took %v, want %v", got, want)
	}

	snap := r.tracker.Snapshot()
	if snap.Target != status.DefaultTarget {
		t.Errorf("target %v after reset, want %v", snap.Target, status.DefaultTarget)
	}
	if snap.Temps != sensor.NewTemperatures() {
		t.Errorf("temps %v after reset, want all disconnected", snap.Temps)
	}
	if snap.Faults != 1 {
		t.Errorf("faults %d, want 1", snap.Faults)
	}

	// Intervals re-armed: nothing fires until a full read period passes.
	res, err := r.ctrl.Tick(context.Background())
	if err != nil || res.Read || res.Decision != nil {
		t.Errorf("tick right after reset: %+v, %v", res, err)
	}
}

func TestFaultPatternStopsOnCancel(t *testing.T) {
	r := newRig(t, temps(25.0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.ctrl.Fault(ctx)
	if r.led.Value() != 0 {
		t.Error("led left on after cancelled pattern")
	}
	if r.led.Writes() > 2 {
		t.Errorf("pattern kept running after cancel: %d writes", r.led.Writes())
	}
}

func TestBlinkWithoutLED(t *testing.T) {
	r := newRig(t, temps(25.0))
	r.ctrl.led = nil
	r.ctrl.Blink(context.Background(), 3, 300*time.Millisecond)
}
