package models

import "time"

// Heartbeat represents the structure for a device presence event.
type Heartbeat struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceStatus
}

// DeviceStatus is a snapshot of the agent state.
type DeviceStatus struct {
	Status         string  `json:"status"`
	Version        string  `json:"version"`
	Address        string  `json:"address,omitempty"`
	Connections    int     `json:"connections"`
	UptimeSeconds  float64 `json:"uptime_s"`
	PendingEffects int     `json:"pending_effects"`
	IndicatorMode  string  `json:"indicator_mode"`
}
