package display

import "sync"

// FakeDisplay records every reading shown.
type FakeDisplay struct {
	mu       sync.Mutex
	Readings []Reading
	ShowErr  error
	Closed   bool
}

// Show records r.
func (f *FakeDisplay) Show(r Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ShowErr != nil {
		return f.ShowErr
	}
	f.Readings = append(f.Readings, r)
	return nil
}

// Close marks the display closed.
func (f *FakeDisplay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Count returns how many readings were shown.
func (f *FakeDisplay) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Readings)
}
