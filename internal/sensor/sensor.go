// Package sensor reads the DS18B20 temperature probes on the 1-Wire bus.
package sensor

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Disconnected is the reading a probe reports when it did not answer.
const Disconnected = -127.0

// Plausible physical range (exclusive) for water and outdoor air.
const (
	MinPlausibleC = -50.0
	MaxPlausibleC = 120.0
)

// Valid reports whether t is a usable reading.
func Valid(t float64) bool {
	return t != Disconnected && t > MinPlausibleC && t < MaxPlausibleC
}

// Channel is the semantic role a probe is bound to.
type Channel int

const (
	FloorMixed Channel = iota
	FloorCold
	HeatingHot
	BatteryCold
	Boiler
	Street

	NumChannels = 6
)

// Channels lists every measured channel in acquisition order.
var Channels = [NumChannels]Channel{FloorMixed, FloorCold, HeatingHot, BatteryCold, Boiler, Street}

var channelNames = [NumChannels]string{
	"floor_mixed",
	"floor_cold",
	"heating_hot",
	"battery_cold",
	"boiler",
	"street",
}

func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// ParseChannel maps a name such as "floor_mixed" back to its Channel.
func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// Address is a probe's 64-bit ROM code, family code first.
type Address [8]byte

var addressCleaner = strings.NewReplacer(
	"{", "", "}", "", "0x", "", "0X", "",
	"-", "", ":", "", ",", "", " ", "",
)

// ParseAddress accepts 16 hex digits, optionally separated by '-', ':' or
// spaces, e.g. "28-61BF3A06000048" or "28:61:bf:3a:06:00:00:48", and the
// form String prints.
func ParseAddress(s string) (Address, error) {
	var a Address
	clean := addressCleaner.Replace(s)
	if len(clean) != 2*len(a) {
		return a, fmt.Errorf("address %q: want %d hex digits", s, 2*len(a))
	}
	if _, err := hex.Decode(a[:], []byte(clean)); err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}
	return a, nil
}

// String formats the address the way it is pasted into configs:
// {0x28, 0x61, 0xBF, 0x3A, 0x06, 0x00, 0x00, 0x48}.
func (a Address) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "0x%02X", v)
	}
	b.WriteByte('}')
	return b.String()
}

// Hex returns the address as 16 upper-case hex digits.
func (a Address) Hex() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// Addresses binds every channel to a probe.
type Addresses [NumChannels]Address

// DefaultAddresses are the probes installed in the boiler room.
var DefaultAddresses = Addresses{
	FloorMixed:  {0x28, 0x61, 0xBF, 0x3A, 0x06, 0x00, 0x00, 0x48},
	FloorCold:   {0x28, 0x55, 0x8A, 0xCC, 0x06, 0x00, 0x00, 0x57},
	HeatingHot:  {0x28, 0x6F, 0xE8, 0xCA, 0x06, 0x00, 0x00, 0xEE},
	BatteryCold: {0x28, 0xC2, 0x6E, 0xCB, 0x06, 0x00, 0x00, 0x20},
	Boiler:      {0x28, 0xD4, 0xD3, 0xE1, 0x06, 0x00, 0x00, 0x01},
	Street:      {0x28, 0xFF, 0x98, 0x3A, 0x91, 0x16, 0x04, 0x36},
}

// Temperatures holds one reading per channel, in °C.
// It is a value type; copies are independent.
type Temperatures [NumChannels]float64

// NewTemperatures returns a set with every channel Disconnected.
func NewTemperatures() Temperatures {
	var t Temperatures
	for i := range t {
		t[i] = Disconnected
	}
	return t
}

// Bus is the 1-Wire master the probes hang off.
type Bus interface {
	// RequestAll starts a conversion on every probe and waits for it.
	RequestAll() error

	// RequestByAddress starts a conversion on a single probe.
	RequestByAddress(addr Address) error

	// ReadC returns the last converted value of a probe in °C.
	// A probe that does not answer yields Disconnected.
	ReadC(addr Address) (float64, error)
}

// Enumerator lists the probes present on a bus.
type Enumerator interface {
	Search() ([]Address, error)
}
