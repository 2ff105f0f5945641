// Package timing provides non-blocking periodic and one-shot timers.
// Nothing here sleeps or reads the clock: callers pass the current time,
// which should come from time.Now so the monotonic reading is used.
package timing

import "time"

// Interval fires at most once per period when polled.
type Interval struct {
	period time.Duration
	last   time.Time
}

// NewInterval creates an Interval whose first firing is one period after start.
func NewInterval(period time.Duration, start time.Time) *Interval {
	return &Interval{period: period, last: start}
}

// Ready reports whether a full period has elapsed since the last firing.
// When it has, the interval re-arms from now.
func (i *Interval) Ready(now time.Time) bool {
	if now.Sub(i.last) < i.period {
		return false
	}
	i.last = now
	return true
}

// Reset re-arms the interval from start.
func (i *Interval) Reset(start time.Time) {
	i.last = start
}

// Timeout is a one-shot timer. The zero value is expired.
type Timeout struct {
	started  time.Time
	duration time.Duration
}

// Start arms the timeout to expire d after now.
func (t *Timeout) Start(d time.Duration, now time.Time) {
	t.started = now
	t.duration = d
}

// Ready reports whether the timeout has expired.
func (t *Timeout) Ready(now time.Time) bool {
	return now.Sub(t.started) >= t.duration
}

// Remaining returns how long until expiry, or zero once expired.
func (t *Timeout) Remaining(now time.Time) time.Duration {
	left := t.duration - now.Sub(t.started)
	if left < 0 {
		return 0
	}
	return left
}
