// Package mqtt carries the mixer's remote channel and event stream over
// MQTT, with abstraction for testing.
//
// Topic layout, under a prefix holding the responder address:
//
//	heating/mixer/15/events     one JSON message per control cycle
//	heating/mixer/15/system     lifecycle events and status snapshots
//	heating/mixer/15/telemetry  28-byte telemetry frames
//	heating/mixer/15/setpoint   inbound 28-byte setpoint frames
//	heating/mixer/15/request    inbound telemetry requests (payload ignored)
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/floor-mixer/internal/logic"
)

// TopicRoot is the namespace shared by every mixer on the broker.
const TopicRoot = "heating/mixer"

// Topics holds the topic names for one responder address.
type Topics struct {
	Events    string
	System    string
	Telemetry string
	Setpoint  string
	Request   string
}

// NewTopics returns the topics for the responder at address.
func NewTopics(address int) Topics {
	prefix := fmt.Sprintf("%s/%d", TopicRoot, address)
	return Topics{
		Events:    prefix + "/events",
		System:    prefix + "/system",
		Telemetry: prefix + "/telemetry",
		Setpoint:  prefix + "/setpoint",
		Request:   prefix + "/request",
	}
}

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// Publish sends a control cycle to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(d logic.Decision) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishTelemetry sends a raw telemetry frame. Frames are dropped
	// rather than buffered while offline.
	PublishTelemetry(frame []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Responder answers the remote channel. bus.Responder implements it.
type Responder interface {
	Receive(payload []byte) bool
	Request() []byte
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "FAULT"
	Reason     string // e.g., "SIGTERM", "bus stall" (shutdown and fault only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a control cycle.
type Payload struct {
	Mixer MixerPayload `json:"mixer"`
}

// MixerPayload contains the control cycle details.
type MixerPayload struct {
	Timestamp string  `json:"timestamp"`
	State     string  `json:"state"`
	Mixed     float64 `json:"mixed"`
	Target    float64 `json:"target"`
	Border    float64 `json:"border"`
	Diff      float64 `json:"diff"`
	PulseMs   int64   `json:"pulse_ms"`
}

// FormatPayload creates the JSON payload for a control cycle.
func FormatPayload(d logic.Decision) ([]byte, error) {
	payload := Payload{
		Mixer: MixerPayload{
			Timestamp: d.At.UTC().Format(time.RFC3339),
			State:     string(d.State),
			Mixed:     d.Mixed,
			Target:    d.Target,
			Border:    d.Border,
			Diff:      d.Diff,
			PulseMs:   d.Pulse.Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
