package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/floor-mixer/internal/logger"
)

// virtualClock advances only when the acquirer sleeps.
type virtualClock struct {
	now    time.Time
	sleeps int
}

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

func newTestAcquirer(bus Bus) (*Acquirer, *virtualClock) {
	clock := &virtualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewAcquirer(bus, DefaultAddresses, 0, logger.Nop())
	a.SetClock(clock.Now, clock.Sleep)
	return a, clock
}

func goodTemps() Temperatures {
	return Temperatures{
		FloorMixed:  24.5,
		FloorCold:   22.0,
		HeatingHot:  55.25,
		BatteryCold: 40.0,
		Boiler:      60.5,
		Street:      -3.75,
	}
}

func TestRefreshAllValid(t *testing.T) {
	bus := NewFakeBus()
	bus.SetAll(DefaultAddresses, goodTemps())
	a, clock := newTestAcquirer(bus)

	got, err := a.Refresh(context.Background(), NewTemperatures())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got != goodTemps() {
		t.Errorf("got %v, want %v", got, goodTemps())
	}
	if bus.RequestAllCalls != 1 {
		t.Errorf("expected 1 RequestAll, got %d", bus.RequestAllCalls)
	}
	if clock.sleeps != 0 {
		t.Errorf("valid reads should not retry, slept %d times", clock.sleeps)
	}
}

func TestRefreshRetriesUntilValid(t *testing.T) {
	bus := NewFakeBus()
	bus.SetAll(DefaultAddresses, goodTemps())
	mixed := DefaultAddresses[FloorMixed]
	bus.Script(mixed,
		Reading{C: Disconnected},
		Reading{C: 185}, // implausible
		Reading{C: 0, Err: errors.New("crc mismatch")},
		Reading{C: 24.75},
	)
	a, clock := newTestAcquirer(bus)

	got, err := a.Refresh(context.Background(), NewTemperatures())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got[FloorMixed] != 24.75 {
		t.Errorf("FloorMixed: got %v, want 24.75", got[FloorMixed])
	}
	if clock.sleeps != 3 {
		t.Errorf("expected 3 retries, got %d", clock.sleeps)
	}
	if bus.RequestByAddr[mixed] != 3 {
		t.Errorf("expected 3 per-address conversions, got %d", bus.RequestByAddr[mixed])
	}
}

func TestRefreshFallbackKeepsPreviousValue(t *testing.T) {
	bus := NewFakeBus()
	bus.SetAll(DefaultAddresses, goodTemps())
	bus.Set(DefaultAddresses[Boiler], Disconnected)
	a, clock := newTestAcquirer(bus)

	prev := goodTemps()
	prev[Boiler] = 71.5
	start := clock.now

	got, err := a.Refresh(context.Background(), prev)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got[Boiler] != 71.5 {
		t.Errorf("Boiler: got %v, want previous 71.5", got[Boiler])
	}
	if elapsed := clock.now.Sub(start); elapsed < DefaultRetryWindow || elapsed > DefaultRetryWindow+DefaultRetryDelay {
		t.Errorf("retry window: elapsed %v, want ~%v", elapsed, DefaultRetryWindow)
	}
}

func TestRefreshFallbackNeverStoresSentinel(t *testing.T) {
	bus := NewFakeBus() // nothing scripted: every probe is Disconnected
	a, _ := newTestAcquirer(bus)

	prev := goodTemps()
	got, err := a.Refresh(context.Background(), prev)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got != prev {
		t.Errorf("got %v, want unchanged %v", got, prev)
	}
}

func TestRefreshImplausibleFallsBack(t *testing.T) {
	bus := NewFakeBus()
	bus.SetAll(DefaultAddresses, goodTemps())
	bus.Set(DefaultAddresses[Street], -55)
	a, _ := newTestAcquirer(bus)

	got, _ := a.Refresh(context.Background(), NewTemperatures())
	if got[Street] != Disconnected {
		t.Errorf("Street: got %v, want previous (Disconnected)", got[Street])
	}
	if got[FloorMixed] != 24.5 {
		t.Errorf("other channels should still update, FloorMixed=%v", got[FloorMixed])
	}
}

func TestRefreshBusStall(t *testing.T) {
	bus := NewFakeBus()
	bus.SetAll(DefaultAddresses, goodTemps())
	bus.RequestAllError = errors.New("bus reset")
	a, _ := newTestAcquirer(bus)

	prev := NewTemperatures()
	prev[FloorMixed] = 30
	got, err := a.Refresh(context.Background(), prev)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, bus.RequestAllError) {
		t.Errorf("error should wrap bus error: %v", err)
	}
	if got != prev {
		t.Errorf("got %v, want prev unchanged", got)
	}
	for _, ch := range Channels {
		if bus.Reads[DefaultAddresses[ch]] != 0 {
			t.Errorf("%s read after failed conversion", ch)
		}
	}
}

func TestRefreshCancelledContextStopsRetry(t *testing.T) {
	bus := NewFakeBus()
	a, clock := newTestAcquirer(bus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prev := goodTemps()
	got, err := a.Refresh(ctx, prev)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got != prev {
		t.Errorf("got %v, want prev", got)
	}
	if clock.sleeps != 0 {
		t.Errorf("cancelled context should not sleep, slept %d", clock.sleeps)
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
