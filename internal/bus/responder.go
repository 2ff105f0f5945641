package bus

import (
	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/sensor"
)

// Store is the shared controller state the responder reads and writes.
// Both methods must be atomic with respect to the control loop.
type Store interface {
	SetTarget(c float64) bool
	Telemetry() (target float64, temps sensor.Temperatures)
}

// Observer is told about every exchange. It must not block.
type Observer interface {
	TargetWrite(accepted bool, target float64)
	TelemetryRead()
}

// Responder handles the two bus events. It may be called from any goroutine.
type Responder struct {
	store Store
	obs   Observer
	log   *logger.Logger
}

// NewResponder creates a Responder. obs may be nil.
func NewResponder(store Store, obs Observer, log *logger.Logger) *Responder {
	return &Responder{store: store, obs: obs, log: log}
}

// Receive handles a setpoint write. Only the target field is used; the
// telemetry fields of an inbound frame are ignored. Wrong-sized frames and
// out-of-range targets are dropped and the sender is not told: the write
// channel is best effort. The return value is for local bookkeeping only.
func (r *Responder) Receive(payload []byte) bool {
	f, err := Decode(payload)
	if err != nil {
		r.log.Debugw("setpoint frame dropped", "err", err)
		if r.obs != nil {
			r.obs.TargetWrite(false, 0)
		}
		return false
	}

	target := float64(f.Target)
	accepted := r.store.SetTarget(target)
	if accepted {
		r.log.Infow("setpoint updated", "target", target)
	} else {
		r.log.Debugw("setpoint out of range, ignored", "target", target)
	}
	if r.obs != nil {
		r.obs.TargetWrite(accepted, target)
	}
	return accepted
}

// Request answers a telemetry request with the current setpoint and the
// readings of a single acquisition pass.
func (r *Responder) Request() []byte {
	target, temps := r.store.Telemetry()
	if r.obs != nil {
		r.obs.TelemetryRead()
	}
	return NewFrame(target, temps).Encode()
}
