package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/floor-mixer/internal/sensor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string              `json:"event,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Target        float64             `json:"target"`
	Temperatures  map[string]*float64 `json:"temperatures"`
	State         string              `json:"state"`
	Relays        RelaysJSON          `json:"relays"`
	LastPulseMs   int64               `json:"last_pulse_ms"`
	Ready         bool                `json:"ready"`
	Faults        int                 `json:"faults"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	StartTime     string              `json:"start_time"`
	Timestamp     string              `json:"timestamp"`
	MQTT          MQTTStatus          `json:"mqtt"`
	Counts        CountsJSON          `json:"cycle_counts"`
	Network       *NetworkJSON        `json:"network,omitempty"`
	Config        ConfigJSON          `json:"config"`
}

// RelaysJSON reports the relay outputs.
type RelaysJSON struct {
	Up               bool  `json:"up"`
	Down             bool  `json:"down"`
	PulseRemainingMs int64 `json:"pulse_remaining_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of cycle counts.
type CountsJSON struct {
	Raising  int `json:"raising"`
	Lowering int `json:"lowering"`
	Holding  int `json:"holding"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CycleMs     int64   `json:"cycle_ms"`
	ReadMs      int64   `json:"read_ms"`
	RelayMs     int64   `json:"relay_ms"`
	Border      float64 `json:"border"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
}

// TemperaturesJSON maps channel names to readings; Disconnected becomes null.
func TemperaturesJSON(temps sensor.Temperatures) map[string]*float64 {
	out := make(map[string]*float64, sensor.NumChannels)
	for _, ch := range sensor.Channels {
		if temps[ch] == sensor.Disconnected {
			out[ch.String()] = nil
			continue
		}
		v := temps[ch]
		out[ch.String()] = &v
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	var pulse int64
	if snap.HasDecision {
		pulse = snap.LastDecision.Pulse.Milliseconds()
	}
	relays := RelaysJSON{
		Up:               snap.RelayUp,
		Down:             snap.RelayDown,
		PulseRemainingMs: snap.PulseRemaining().Milliseconds(),
	}

	inner := StatusInner{
		Target:        snap.Target,
		Temperatures:  TemperaturesJSON(snap.Temps),
		State:         string(snap.State),
		Relays:        relays,
		LastPulseMs:   pulse,
		Ready:         snap.Ready,
		Faults:        snap.Faults,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Raising:  snap.Counts.Raising,
			Lowering: snap.Counts.Lowering,
			Holding:  snap.Counts.Holding,
		},
		Config: ConfigJSON{
			CycleMs:     snap.Config.CycleMs,
			ReadMs:      snap.Config.ReadMs,
			RelayMs:     snap.Config.RelayMs,
			Border:      snap.Config.Border,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if inner.State == "" {
		inner.State = "UNKNOWN"
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
