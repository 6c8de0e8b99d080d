// Package hal is the hardware abstraction the agent drives. Concrete drivers
// implement Hardware for a target platform.
package hal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Mode is the direction a pin is configured for.
type Mode string

const (
	ModeInput  Mode = "input"
	ModeOutput Mode = "output"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeInput, ModeOutput:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q, expected %q or %q", s, ModeInput, ModeOutput)
}

// LED drives the on-board status indicator.
type LED interface {
	LEDOn() error
	LEDOff() error
}

// Pins is the digital I/O part of a driver.
type Pins interface {
	Configure(pin int, mode Mode) error
	Write(pin, value int) error
	Read(pin int) (int, error)
}

// Hardware is everything the agent needs from a platform.
type Hardware interface {
	LED
	Pins
	DeviceInfo(ctx context.Context) (map[string]any, error)
	// Sleep enters a low-power mode for d and returns after waking.
	Sleep(ctx context.Context, d time.Duration, deep bool) error
	// Reset restarts the device. Drivers for real boards do not return.
	Reset(soft bool) error
}

// InfoSource supplies platform diagnostics to drivers that have no native
// equivalent.
type InfoSource interface {
	Collect(ctx context.Context) map[string]any
}

// New returns the driver registered under name.
func New(name string, info InfoSource, logger zerolog.Logger) (Hardware, error) {
	switch name {
	case "", DriverSimulated:
		return NewSimulated(info, logger), nil
	}
	return nil, fmt.Errorf("unknown hardware driver %q", name)
}
