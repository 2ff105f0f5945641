// Package gpio provides GPIO output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Line is a single GPIO output.
type Line interface {
	// SetValue drives the line to its logical value (1 = active).
	// Active-low wiring is handled when the line is requested.
	SetValue(value int) error
}

// Default pin assignments (BCM numbering).
const (
	DefaultPinRelayUp   = 23
	DefaultPinRelayDown = 24
	DefaultPinLED       = 25
)

// DefaultChip is the GPIO character device holding the header pins.
const DefaultChip = "gpiochip0"
