package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Server struct {
		Address          string        `yaml:"address"`           // Address to bind the listener to
		Port             int           `yaml:"port"`              // TCP port of the command protocol
		MaxConnections   int           `yaml:"max_connections"`   // Maximum number of connections served at once
		MaxMessageSize   int           `yaml:"max_message_size"`  // Maximum size of a single request in bytes
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // Timeout for the TLS handshake of a connection
		WriteTimeout     time.Duration `yaml:"write_timeout"`     // Timeout for writing a single response
		IdleTimeout      time.Duration `yaml:"idle_timeout"`      // Close connections idle for longer than this (0 disables)

		TLS struct {
			Enabled  bool   `yaml:"enabled"`   // Wrap connections in TLS
			CertFile string `yaml:"cert_file"` // Path to the server certificate (PEM or DER)
			KeyFile  string `yaml:"key_file"`  // Path to the server private key (PEM or DER)
		} `yaml:"tls"`
	} `yaml:"server"`

	Indicator struct {
		IdleOn    time.Duration `yaml:"idle_on"`    // LED on time of the idle heartbeat
		IdleOff   time.Duration `yaml:"idle_off"`   // LED off time of the idle heartbeat
		ActiveOn  time.Duration `yaml:"active_on"`  // LED on time while serving a connection
		ActiveOff time.Duration `yaml:"active_off"` // LED off time while serving a connection
	} `yaml:"indicator"`

	Actions struct {
		ResetDelay time.Duration `yaml:"reset_delay"` // Delay before a requested reset
		SleepDelay time.Duration `yaml:"sleep_delay"` // Delay before entering low-power mode
		MaxBlink   time.Duration `yaml:"max_blink"`   // Upper bound for an explicit blink request
	} `yaml:"actions"`

	Hardware struct {
		Driver         string        `yaml:"driver"`          // Hardware driver name
		InfoCollectors []string      `yaml:"info_collectors"` // Diagnostics reported by get_info (empty means all)
		InfoTimeout    time.Duration `yaml:"info_timeout"`    // Timeout for collecting diagnostics
	} `yaml:"hardware"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Heartbeat struct {
		Enabled        bool          `yaml:"enabled"`         // Enable/disable MQTT presence heartbeats
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate (empty for plain TCP)
		Topic          string        `yaml:"topic"`           // MQTT topic for heartbeats
		Interval       time.Duration `yaml:"interval"`        // Interval between heartbeats
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for connecting to the broker
		QOS            int           `yaml:"qos"`             // MQTT QoS level for heartbeat messages
	} `yaml:"heartbeat"`

	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Format string `yaml:"format"` // "json" or "console"
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var config Config
	config.ApplyDefaults()
	return &config
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.Address, constants.DefaultAddress)
	setDefault(&c.Server.Port, constants.DefaultPort)
	setDefault(&c.Server.MaxConnections, constants.DefaultMaxConnections)
	setDefault(&c.Server.MaxMessageSize, constants.DefaultMaxMessageSize)
	setDefault(&c.Server.HandshakeTimeout, constants.DefaultHandshakeTimeout)
	setDefault(&c.Server.WriteTimeout, constants.DefaultWriteTimeout)

	setDefault(&c.Indicator.IdleOn, constants.DefaultIdleBlinkOn)
	setDefault(&c.Indicator.IdleOff, constants.DefaultIdleBlinkOff)
	setDefault(&c.Indicator.ActiveOn, constants.DefaultActiveBlinkOn)
	setDefault(&c.Indicator.ActiveOff, constants.DefaultActiveBlinkOff)

	setDefault(&c.Actions.ResetDelay, constants.DefaultResetDelay)
	setDefault(&c.Actions.SleepDelay, constants.DefaultSleepDelay)
	setDefault(&c.Actions.MaxBlink, constants.DefaultMaxBlink)

	setDefault(&c.Hardware.Driver, constants.DefaultHardwareDriver)
	setDefault(&c.Hardware.InfoTimeout, constants.DefaultInfoTimeout)

	setDefault(&c.Identity.DeviceFile, constants.DefaultDeviceFile)

	setDefault(&c.Heartbeat.Topic, constants.DefaultHeartbeatTopic)
	setDefault(&c.Heartbeat.Interval, constants.DefaultHeartbeatInterval)
	setDefault(&c.Heartbeat.ConnectTimeout, constants.DefaultConnectTimeout)
	setDefault(&c.Heartbeat.ClientID, "gpio-agent")

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "json")
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if c.Heartbeat.Enabled && c.Heartbeat.Broker == "" {
		errs = append(errs, errors.New("heartbeat.broker is required when heartbeat is enabled"))
	}
	if c.Heartbeat.QOS < 0 || c.Heartbeat.QOS > 2 {
		errs = append(errs, fmt.Errorf("heartbeat.qos %d out of range", c.Heartbeat.QOS))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
