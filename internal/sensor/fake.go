package sensor

import (
	"errors"
	"sync"
)

// Reading is a scripted probe response.
type Reading struct {
	C   float64
	Err error
}

// FakeBus is a test double that returns scripted readings per address.
// Each ReadC consumes the next reading for that address; the last one
// repeats once the script is exhausted.
type FakeBus struct {
	mu sync.Mutex

	scripts map[Address][]Reading
	index   map[Address]int

	// RequestAllError, if set, is returned by RequestAll.
	RequestAllError error

	// Present is returned by Search.
	Present []Address

	RequestAllCalls int
	RequestByAddr   map[Address]int
	Reads           map[Address]int
}

// NewFakeBus creates an empty FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		scripts:       make(map[Address][]Reading),
		index:         make(map[Address]int),
		RequestByAddr: make(map[Address]int),
		Reads:         make(map[Address]int),
	}
}

// Script replaces the readings for addr.
func (f *FakeBus) Script(addr Address, readings ...Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[addr] = readings
	f.index[addr] = 0
}

// Set scripts a single repeating value for addr.
func (f *FakeBus) Set(addr Address, c float64) {
	f.Script(addr, Reading{C: c})
}

// SetAll scripts one repeating value per channel.
func (f *FakeBus) SetAll(addrs Addresses, temps Temperatures) {
	for _, ch := range Channels {
		f.Set(addrs[ch], temps[ch])
	}
}

// RequestAll records the call.
func (f *FakeBus) RequestAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RequestAllCalls++
	return f.RequestAllError
}

// RequestByAddress records the call.
func (f *FakeBus) RequestByAddress(addr Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RequestByAddr[addr]++
	return nil
}

// ReadC returns the next scripted reading for addr, or Disconnected if
// nothing was scripted.
func (f *FakeBus) ReadC(addr Address) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads[addr]++

	script := f.scripts[addr]
	if len(script) == 0 {
		return Disconnected, nil
	}
	i := f.index[addr]
	if i < len(script)-1 {
		f.index[addr] = i + 1
	}
	return script[i].C, script[i].Err
}

// Search returns Present.
func (f *FakeBus) Search() ([]Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Present == nil {
		return nil, errors.New("no devices")
	}
	return append([]Address(nil), f.Present...), nil
}
