//go:build !linux

package sensor

import "errors"

// OneWireBus is not available on non-Linux platforms.
type OneWireBus struct{}

// OpenOneWire returns an error on non-Linux platforms.
func OpenOneWire(name string, resolution int) (*OneWireBus, error) {
	return nil, errors.New("sensor: 1-wire not supported on this platform (requires Linux)")
}

// RequestAll is not implemented on non-Linux platforms.
func (b *OneWireBus) RequestAll() error { return errors.New("sensor: not supported") }

// RequestByAddress is not implemented on non-Linux platforms.
func (b *OneWireBus) RequestByAddress(addr Address) error { return errors.New("sensor: not supported") }

// ReadC is not implemented on non-Linux platforms.
func (b *OneWireBus) ReadC(addr Address) (float64, error) {
	return Disconnected, errors.New("sensor: not supported")
}

// Search is not implemented on non-Linux platforms.
func (b *OneWireBus) Search() ([]Address, error) { return nil, errors.New("sensor: not supported") }

// Close is a no-op on non-Linux platforms.
func (b *OneWireBus) Close() error { return nil }
