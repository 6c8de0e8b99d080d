package constants

import "time"

// Device statuses reported in presence heartbeats.
const (
	// StatusIdle indicates the device is powered and waiting for a connection
	StatusIdle = "idle"
	// StatusActive indicates the device is serving at least one connection
	StatusActive = "active"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTopic    = "devices/heartbeat"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultInfoTimeout       = 2 * time.Second
	DefaultHardwareDriver    = "simulated"
	DefaultDeviceFile        = "configs/device.json"
)
