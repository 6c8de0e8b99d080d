package constants

import "time"

// Idle heartbeat cadence of the status LED.
const (
	DefaultIdleBlinkOn  = 1500 * time.Millisecond
	DefaultIdleBlinkOff = 1500 * time.Millisecond
)

// Fast cadence shown while a connection is being served.
const (
	DefaultActiveBlinkOn  = 20 * time.Millisecond
	DefaultActiveBlinkOff = 100 * time.Millisecond
)
