//go:build !linux

package display

import "errors"

// Panel is not available on non-Linux platforms.
type Panel struct{}

// OpenPanel returns an error on non-Linux platforms.
func OpenPanel(busName string) (*Panel, error) {
	return nil, errors.New("display: not supported on this platform (requires Linux)")
}

// Show is not implemented on non-Linux platforms.
func (p *Panel) Show(Reading) error { return errors.New("display: not supported") }

// Close is a no-op on non-Linux platforms.
func (p *Panel) Close() error { return nil }
