package bus

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/sensor"
	"github.com/sweeney/floor-mixer/internal/status"
)

type recordingObserver struct {
	mu       sync.Mutex
	writes   []bool
	requests int
}

func (o *recordingObserver) TargetWrite(accepted bool, target float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, accepted)
}

func (o *recordingObserver) TelemetryRead() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests++
}

func newTestResponder() (*Responder, *status.Tracker, *recordingObserver) {
	tr := status.NewTracker(time.Now(), status.Config{})
	obs := &recordingObserver{}
	return NewResponder(tr, obs, logger.Nop()), tr, obs
}

func targetFrame(target float32) []byte {
	return Frame{Target: target}.Encode()
}

func TestFrameSize(t *testing.T) {
	if FrameSize != 28 {
		t.Errorf("FrameSize: got %d, want 28", FrameSize)
	}
	if len(Frame{}.Encode()) != FrameSize {
		t.Error("encoded frame has wrong length")
	}
}

func TestFrameWireLayout(t *testing.T) {
	f := Frame{Target: 25, Temps: [sensor.NumChannels]float32{24.5, 0, 0, 0, 0, -127}}
	b := f.Encode()

	// 25.0f = 0x41C80000, little-endian
	if !bytes.Equal(b[0:4], []byte{0x00, 0x00, 0xC8, 0x41}) {
		t.Errorf("target bytes: got % X", b[0:4])
	}
	// 24.5f = 0x41C40000
	if !bytes.Equal(b[4:8], []byte{0x00, 0x00, 0xC4, 0x41}) {
		t.Errorf("floor_mixed bytes: got % X", b[4:8])
	}
	// -127.0f = 0xC2FE0000
	if !bytes.Equal(b[24:28], []byte{0x00, 0x00, 0xFE, 0xC2}) {
		t.Errorf("street bytes: got % X", b[24:28])
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, 4, 27, 29, 56} {
		_, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrFrameSize) {
			t.Errorf("len %d: expected ErrFrameSize, got %v", n, err)
		}
	}
}

func TestDecodeEncode(t *testing.T) {
	want := Frame{Target: 31.5, Temps: [sensor.NumChannels]float32{1, 2, 3, 4, 5, 6}}
	got, err := Decode(want.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReceiveAcceptsInRange(t *testing.T) {
	r, tr, obs := newTestResponder()

	if !r.Receive(targetFrame(30)) {
		t.Error("30 should be accepted")
	}
	if tr.Target() != 30 {
		t.Errorf("Target: got %v, want 30", tr.Target())
	}
	if len(obs.writes) != 1 || !obs.writes[0] {
		t.Errorf("observer: got %v", obs.writes)
	}
}

func TestReceiveRejectsBelowRange(t *testing.T) {
	r, tr, _ := newTestResponder()
	tr.SetTarget(28)

	if r.Receive(targetFrame(5)) {
		t.Error("5 should be rejected")
	}
	if tr.Target() != 28 {
		t.Errorf("Target: got %v, want unchanged 28", tr.Target())
	}
}

func TestReceiveRejectsAboveRangeAndNaN(t *testing.T) {
	r, tr, _ := newTestResponder()

	for _, v := range []float32{45.5, 200, float32(math.NaN()), float32(math.Inf(1))} {
		if r.Receive(targetFrame(v)) {
			t.Errorf("%v should be rejected", v)
		}
	}
	if tr.Target() != status.DefaultTarget {
		t.Errorf("Target: got %v, want default", tr.Target())
	}
}

func TestReceiveWrongLengthUpdatesNothing(t *testing.T) {
	r, tr, obs := newTestResponder()
	tr.SetTarget(22)

	payload := targetFrame(30)
	if r.Receive(payload[:FrameSize-1]) {
		t.Error("short frame should be rejected")
	}
	if r.Receive(append(payload, 0)) {
		t.Error("long frame should be rejected")
	}
	if tr.Target() != 22 {
		t.Errorf("Target: got %v, want unchanged 22", tr.Target())
	}
	if len(obs.writes) != 2 || obs.writes[0] || obs.writes[1] {
		t.Errorf("observer: got %v", obs.writes)
	}
}

func TestReceiveIgnoresTelemetryFields(t *testing.T) {
	r, tr, _ := newTestResponder()
	temps := sensor.Temperatures{20, 21, 22, 23, 24, 25}
	tr.SetTemperatures(temps, time.Now())

	f := Frame{Target: 33, Temps: [sensor.NumChannels]float32{99, 99, 99, 99, 99, 99}}
	r.Receive(f.Encode())

	if tr.Temperatures() != temps {
		t.Errorf("inbound telemetry fields must not be applied, got %v", tr.Temperatures())
	}
}

func TestRequestReturnsCurrentState(t *testing.T) {
	r, tr, obs := newTestResponder()
	tr.SetTarget(27.5)
	tr.SetTemperatures(sensor.Temperatures{24.5, 22, 55.25, 40, 60.5, -3.75}, time.Now())

	f, err := Decode(r.Request())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Frame{Target: 27.5, Temps: [sensor.NumChannels]float32{24.5, 22, 55.25, 40, 60.5, -3.75}}
	if f != want {
		t.Errorf("got %+v, want %+v", f, want)
	}
	if obs.requests != 1 {
		t.Errorf("observer requests: got %d", obs.requests)
	}
}

func TestRequestNeverInterleavesAcquisitionPasses(t *testing.T) {
	r, tr, _ := newTestResponder()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			v := float64(i % 40)
			tr.SetTemperatures(sensor.Temperatures{v, v, v, v, v, v}, time.Now())
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		f, err := Decode(r.Request())
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		for i, v := range f.Temps {
			if v != f.Temps[0] {
				t.Fatalf("field %d from another pass: %v", i, f.Temps)
			}
		}
	}
}

func TestNilObserver(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	r := NewResponder(tr, nil, logger.Nop())

	r.Receive(targetFrame(30))
	r.Receive(nil)
	r.Request()
}
