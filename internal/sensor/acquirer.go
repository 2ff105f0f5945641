package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/floor-mixer/internal/logger"
)

// Retry defaults.
const (
	DefaultRetryWindow = 1000 * time.Millisecond
	DefaultRetryDelay  = 20 * time.Millisecond
)

// Acquirer refreshes every channel from the bus, retrying bad reads.
type Acquirer struct {
	bus         Bus
	addrs       Addresses
	retryWindow time.Duration
	retryDelay  time.Duration
	log         *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAcquirer creates an Acquirer reading addrs from bus.
// A zero retryWindow selects DefaultRetryWindow.
func NewAcquirer(bus Bus, addrs Addresses, retryWindow time.Duration, log *logger.Logger) *Acquirer {
	if retryWindow <= 0 {
		retryWindow = DefaultRetryWindow
	}
	return &Acquirer{
		bus:         bus,
		addrs:       addrs,
		retryWindow: retryWindow,
		retryDelay:  DefaultRetryDelay,
		log:         log,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// SetClock replaces the clock and sleep used by the retry loop.
func (a *Acquirer) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	a.now = now
	a.sleep = sleep
}

// Refresh starts a bus-wide conversion and reads every channel.
//
// A channel whose reading stays invalid for the whole retry window keeps its
// value from prev, so Disconnected never replaces a good reading. The only
// error is a failed bus-wide conversion request, in which case prev is
// returned unchanged.
func (a *Acquirer) Refresh(ctx context.Context, prev Temperatures) (Temperatures, error) {
	if err := a.bus.RequestAll(); err != nil {
		return prev, fmt.Errorf("request conversion: %w", err)
	}

	next := prev
	for _, ch := range Channels {
		next[ch] = a.readChannel(ctx, ch, prev[ch])
	}
	return next, nil
}

func (a *Acquirer) readChannel(ctx context.Context, ch Channel, prev float64) float64 {
	addr := a.addrs[ch]

	t, err := a.bus.ReadC(addr)
	if err == nil && Valid(t) {
		return t
	}

	deadline := a.now().Add(a.retryWindow)
	attempts := 1
	for a.now().Before(deadline) {
		if err := a.sleep(ctx, a.retryDelay); err != nil {
			break
		}
		attempts++
		if err := a.bus.RequestByAddress(addr); err != nil {
			continue
		}
		t, err = a.bus.ReadC(addr)
		if err == nil && Valid(t) {
			return t
		}
	}

	a.log.Warnw("sensor read failed, keeping last value",
		"channel", ch.String(), "address", addr.Hex(), "attempts", attempts, "last", t, "kept", prev)
	return prev
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
