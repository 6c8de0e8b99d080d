package constants

import "time"

// Delays applied before actions that would cut the response off if run inline.
const (
	DefaultResetDelay = 1 * time.Second
	DefaultSleepDelay = 1 * time.Second
)

// Defaults for the explicit blink action.
const (
	DefaultBlinkDuration = 50 * time.Millisecond
	DefaultBlinkCount    = 3
	DefaultBlinkGap      = 100 * time.Millisecond
	DefaultMaxBlink      = 10 * time.Second

	// MaxBlinkCount bounds n even when on and off are both zero.
	MaxBlinkCount = 1000
)
