// Package bus implements the supervisory controller's view of the mixer:
// a passive responder that accepts setpoint writes and answers telemetry
// requests with a fixed-size binary record.
package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sweeney/floor-mixer/internal/sensor"
)

// DefaultAddress is the responder address the supervisor polls.
const DefaultAddress = 15

// FrameSize is the wire size of a Frame: seven little-endian float32s.
const FrameSize = 4 * (1 + sensor.NumChannels)

// ErrFrameSize is returned by Decode for payloads that are not FrameSize long.
var ErrFrameSize = errors.New("bus: wrong frame size")

// Frame is the record exchanged with the supervisor. Temps are in
// sensor.Channels order: floor-mixed, floor-cold, heating-hot, battery-cold,
// boiler, street.
type Frame struct {
	Target float32
	Temps  [sensor.NumChannels]float32
}

// NewFrame builds a Frame from controller state.
func NewFrame(target float64, temps sensor.Temperatures) Frame {
	f := Frame{Target: float32(target)}
	for _, ch := range sensor.Channels {
		f.Temps[ch] = float32(temps[ch])
	}
	return f
}

// Encode returns the wire form of f.
func (f Frame) Encode() []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(f.Target))
	for i, t := range f.Temps {
		binary.LittleEndian.PutUint32(buf[4*(i+1):], math.Float32bits(t))
	}
	return buf
}

// Decode parses a wire frame. Anything but exactly FrameSize bytes is
// rejected without looking at the contents.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameSize {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(b), FrameSize)
	}
	f.Target = math.Float32frombits(binary.LittleEndian.Uint32(b))
	for i := range f.Temps {
		f.Temps[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*(i+1):]))
	}
	return f, nil
}
