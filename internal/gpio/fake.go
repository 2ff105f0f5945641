package gpio

import "sync"

// FakeLine is a test double that records every value written.
type FakeLine struct {
	mu sync.Mutex

	// Values contains every value passed to SetValue, in order.
	Values []int

	// SetError, if set, will be returned by SetValue (the value is not recorded).
	SetError error
}

// NewFakeLine creates an inactive FakeLine.
func NewFakeLine() *FakeLine {
	return &FakeLine{}
}

// SetValue records the value.
func (f *FakeLine) SetValue(value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, value)
	return nil
}

// Value returns the last written value, or 0 if nothing was written.
func (f *FakeLine) Value() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return 0
	}
	return f.Values[len(f.Values)-1]
}

// Writes returns how many values were recorded.
func (f *FakeLine) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Values)
}

// Reset clears recorded values and errors.
func (f *FakeLine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Values = nil
	f.SetError = nil
}
