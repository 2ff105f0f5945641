// Package metrics exports controller state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/floor-mixer/internal/logic"
	"github.com/sweeney/floor-mixer/internal/sensor"
)

const namespace = "floor_mixer"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	target      prometheus.Gauge
	relay       *prometheus.GaugeVec
	cycles      *prometheus.CounterVec
	pulse       prometheus.Histogram
	readFails   prometheus.Counter
	faults      prometheus.Counter
	writes      *prometheus.CounterVec
	requests    prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last valid reading per probe.",
		}, []string{"channel"}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_celsius",
			Help:      "Floor mixed-water setpoint.",
		}),
		relay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_enabled",
			Help:      "1 while the direction relay is energised.",
		}, []string{"relay"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control cycles by outcome.",
		}, []string{"state"}),
		pulse: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pulse_seconds",
			Help:      "Valve pulse lengths.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7},
		}),
		readFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_failures_total",
			Help:      "Failed bus-wide conversion requests.",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Fail-safe resets.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setpoint_writes_total",
			Help:      "Setpoint writes from the supervisor by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_requests_total",
			Help:      "Telemetry requests from the supervisor.",
		}),
	}
	m.registry.MustRegister(
		m.temperature, m.target, m.relay, m.cycles, m.pulse,
		m.readFails, m.faults, m.writes, m.requests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Temperatures records a completed acquisition pass. Disconnected channels
// are not exported.
func (m *Metrics) Temperatures(temps sensor.Temperatures) {
	for _, ch := range sensor.Channels {
		if temps[ch] == sensor.Disconnected {
			m.temperature.DeleteLabelValues(ch.String())
			continue
		}
		m.temperature.WithLabelValues(ch.String()).Set(temps[ch])
	}
}

// Target records the setpoint.
func (m *Metrics) Target(c float64) {
	m.target.Set(c)
}

// Relays records the relay outputs.
func (m *Metrics) Relays(up, down bool) {
	m.relay.WithLabelValues("up").Set(boolToFloat(up))
	m.relay.WithLabelValues("down").Set(boolToFloat(down))
}

// Decision records a control cycle.
func (m *Metrics) Decision(d logic.Decision) {
	m.cycles.WithLabelValues(string(d.State)).Inc()
	if d.Pulse > 0 {
		m.pulse.Observe(d.Pulse.Seconds())
	}
}

// BusFailure records a failed bus-wide conversion.
func (m *Metrics) BusFailure() {
	m.readFails.Inc()
}

// Fault records a fail-safe reset.
func (m *Metrics) Fault() {
	m.faults.Inc()
}

// TargetWrite implements bus.Observer.
func (m *Metrics) TargetWrite(accepted bool, target float64) {
	if accepted {
		m.writes.WithLabelValues("accepted").Inc()
		m.target.Set(target)
		return
	}
	m.writes.WithLabelValues("rejected").Inc()
}

// TelemetryRead implements bus.Observer.
func (m *Metrics) TelemetryRead() {
	m.requests.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
