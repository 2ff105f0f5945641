//go:build linux

package sensor

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ds18b20"
	"periph.io/x/host/v3"
)

// OneWireBus talks to DS18B20 probes through the kernel w1 netlink master.
type OneWireBus struct {
	bus        onewire.BusCloser
	resolution int

	mu   sync.Mutex
	devs map[Address]*ds18b20.Dev
}

// OpenOneWire opens the named 1-Wire bus ("" selects the first one) and
// converts at the given resolution in bits (9 to 12).
func OpenOneWire(name string, resolution int) (*OneWireBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := onewirereg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open 1-wire bus %q: %w", name, err)
	}
	return &OneWireBus{
		bus:        bus,
		resolution: resolution,
		devs:       make(map[Address]*ds18b20.Dev),
	}, nil
}

// RequestAll converts every probe on the bus at once.
func (b *OneWireBus) RequestAll() error {
	return ds18b20.ConvertAll(b.bus, b.resolution)
}

// RequestByAddress converts a single probe.
func (b *OneWireBus) RequestByAddress(addr Address) error {
	dev, err := b.device(addr)
	if err != nil {
		return err
	}
	_, err = dev.Temperature()
	return err
}

// ReadC reads a probe's scratchpad without starting a conversion.
func (b *OneWireBus) ReadC(addr Address) (float64, error) {
	dev, err := b.device(addr)
	if err != nil {
		return Disconnected, err
	}
	t, err := dev.LastTemp()
	if err != nil {
		return Disconnected, err
	}
	return celsius(t), nil
}

// Search lists the probes that answer on the bus.
func (b *OneWireBus) Search() ([]Address, error) {
	found, err := b.bus.Search(false)
	if err != nil {
		return nil, fmt.Errorf("search 1-wire bus: %w", err)
	}
	out := make([]Address, 0, len(found))
	for _, a := range found {
		out = append(out, fromOneWire(a))
	}
	return out, nil
}

// Close releases the bus.
func (b *OneWireBus) Close() error {
	return b.bus.Close()
}

// device returns the cached handle for addr, opening it on first use.
// Opening fails while the probe is absent, so it is retried on every read.
func (b *OneWireBus) device(addr Address) (*ds18b20.Dev, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dev, ok := b.devs[addr]; ok {
		return dev, nil
	}
	dev, err := ds18b20.New(b.bus, toOneWire(addr), b.resolution)
	if err != nil {
		return nil, fmt.Errorf("open probe %s: %w", addr.Hex(), err)
	}
	b.devs[addr] = dev
	return dev, nil
}

// ROM codes go out on the wire LSB first, so the family code is the low byte.
func toOneWire(a Address) onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(a[:]))
}

func fromOneWire(a onewire.Address) Address {
	var out Address
	binary.LittleEndian.PutUint64(out[:], uint64(a))
	return out
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}
