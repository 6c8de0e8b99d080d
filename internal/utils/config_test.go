package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/mocks"
	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 2000
indicator:
  idle_on: 500ms
logging:
  format: console
`)

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, 2000, config.Server.Port)
	assert.Equal(t, constants.DefaultAddress, config.Server.Address)
	assert.Equal(t, constants.DefaultMaxConnections, config.Server.MaxConnections)
	assert.Equal(t, constants.DefaultMaxMessageSize, config.Server.MaxMessageSize)
	assert.Equal(t, 500*time.Millisecond, config.Indicator.IdleOn)
	assert.Equal(t, constants.DefaultIdleBlinkOff, config.Indicator.IdleOff)
	assert.Equal(t, time.Second, config.Actions.ResetDelay)
	assert.Equal(t, "simulated", config.Hardware.Driver)
	assert.Equal(t, "console", config.Logging.Format)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadConfig_HeartbeatTimeouts(t *testing.T) {
	path := writeConfig(t, `
heartbeat:
  enabled: true
  broker: "tcp://broker:1883"
  interval: 5m
  connect_timeout: 3s
`)

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, config.Heartbeat.Interval)
	assert.Equal(t, 3*time.Second, config.Heartbeat.ConnectTimeout)
}

func TestLoadConfig_RepositoryConfig(t *testing.T) {
	config, err := LoadConfig("../../configs/config.yaml", file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultPort, config.Server.Port)
	assert.Equal(t, 20*time.Millisecond, config.Indicator.ActiveOn)
	assert.Equal(t, 100*time.Millisecond, config.Indicator.ActiveOff)
	assert.Equal(t, 10*time.Second, config.Heartbeat.ConnectTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"tls without files", "server:\n  tls:\n    enabled: true\n"},
		{"heartbeat without broker", "heartbeat:\n  enabled: true\n"},
		{"bad qos", "heartbeat:\n  qos: 3\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"unknown field", "server:\n  prot: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), file.NewFileService())
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ReadError(t *testing.T) {
	mockFile := new(mocks.MockFileOperations)
	mockFile.On("ReadYamlFile", "missing.yaml", mock.Anything).Return(errors.New("file not found"))

	_, err := LoadConfig("missing.yaml", mockFile)

	assert.ErrorContains(t, err, "file not found")
	mockFile.AssertExpectations(t)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NoError(t, config.Validate())
	assert.Equal(t, constants.DefaultPort, config.Server.Port)
	assert.Equal(t, constants.DefaultHeartbeatInterval, config.Heartbeat.Interval)
	assert.Equal(t, constants.DefaultConnectTimeout, config.Heartbeat.ConnectTimeout)
}
