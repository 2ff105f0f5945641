package gpio

import (
	"errors"
	"testing"
)

func TestFakeLineRecordsValues(t *testing.T) {
	f := NewFakeLine()

	if f.Value() != 0 {
		t.Errorf("initial value: got %d, want 0", f.Value())
	}

	for _, v := range []int{1, 0, 1} {
		if err := f.SetValue(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.Writes() != 3 {
		t.Errorf("expected 3 writes, got %d", f.Writes())
	}
	if f.Value() != 1 {
		t.Errorf("last value: got %d, want 1", f.Value())
	}
}

func TestFakeLineError(t *testing.T) {
	f := NewFakeLine()
	f.SetError = errors.New("simulated error")

	err := f.SetValue(1)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if f.Writes() != 0 {
		t.Errorf("failed write should not be recorded, got %d", f.Writes())
	}
}

func TestFakeLineReset(t *testing.T) {
	f := NewFakeLine()
	f.SetValue(1)
	f.SetError = errors.New("boom")

	f.Reset()

	if f.Writes() != 0 {
		t.Errorf("expected no writes after reset, got %d", f.Writes())
	}
	if err := f.SetValue(0); err != nil {
		t.Errorf("error should be cleared by reset: %v", err)
	}
}

func TestFakeLineSatisfiesLine(t *testing.T) {
	var _ Line = NewFakeLine()
}
