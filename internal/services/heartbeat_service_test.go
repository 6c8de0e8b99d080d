package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/mocks"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticStatus models.DeviceStatus

func (s staticStatus) DeviceStatus() models.DeviceStatus {
	return models.DeviceStatus(s)
}

func newTestHeartbeat(mqttClient *mocks.MockMQTTClient, interval time.Duration) (*HeartbeatService, *mocks.MockDeviceInfo) {
	mockDeviceInfo := new(mocks.MockDeviceInfo)
	mockDeviceInfo.On("GetDeviceID").Return("test-device-id")
	mockDeviceInfo.On("GetDeviceName").Return("bench")

	status := staticStatus{Status: constants.StatusActive, Version: "1.11.0", Connections: 2}
	h := NewHeartbeatService("test-topic", interval, 1, mockDeviceInfo, status, mqttClient, zerolog.Nop())
	return h, mockDeviceInfo
}

// TestHeartbeatService_Start_Success tests the successful start of the HeartbeatService.
func TestHeartbeatService_Start_Success(t *testing.T) {
	// Setup
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockMQTTClient.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(mocks.NewCompletedToken(nil))
	h, _ := newTestHeartbeat(mockMQTTClient, time.Second)

	// Execute
	err := h.Start()

	// Assert
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = h.Start()
	assert.Error(t, err)
	assert.Equal(t, "heartbeat service is already running", err.Error())

	// Cleanup
	err = h.Stop()
	assert.NoError(t, err)
}

// TestHeartbeatService_Stop_NotRunning tests stopping a service that never started.
func TestHeartbeatService_Stop_NotRunning(t *testing.T) {
	h, _ := newTestHeartbeat(new(mocks.MockMQTTClient), time.Second)

	err := h.Stop()
	assert.Error(t, err)
	assert.Equal(t, "heartbeat service is not running", err.Error())
}

// TestHeartbeatService_Publish_Payload tests the content of published heartbeats.
func TestHeartbeatService_Publish_Payload(t *testing.T) {
	// Setup
	payloads := make(chan []byte, 10)
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockMQTTClient.On("Publish", "test-topic", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			payloads <- args.Get(3).([]byte)
		}).
		Return(mocks.NewCompletedToken(nil))
	h, mockDeviceInfo := newTestHeartbeat(mockMQTTClient, 50*time.Millisecond)

	// Execute
	require.NoError(t, h.Start())

	// one right away, then one per tick
	var first []byte
	for i := 0; i < 2; i++ {
		select {
		case p := <-payloads:
			if first == nil {
				first = p
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat published")
		}
	}
	require.NoError(t, h.Stop())

	// Assert
	var heartbeat models.Heartbeat
	require.NoError(t, json.Unmarshal(first, &heartbeat))
	assert.Equal(t, "test-device-id", heartbeat.DeviceID)
	assert.Equal(t, "bench", heartbeat.DeviceName)
	assert.Equal(t, constants.StatusActive, heartbeat.Status)
	assert.Equal(t, 2, heartbeat.Connections)
	assert.False(t, heartbeat.Timestamp.IsZero())

	mockDeviceInfo.AssertExpectations(t)
	mockMQTTClient.AssertExpectations(t)
}

// TestHeartbeatService_Publish_Error tests the heartbeat loop with a publishing error.
func TestHeartbeatService_Publish_Error(t *testing.T) {
	// Setup
	published := make(chan struct{}, 10)
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockMQTTClient.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			published <- struct{}{}
		}).
		Return(mocks.NewCompletedToken(errors.New("broker unavailable")))
	h, _ := newTestHeartbeat(mockMQTTClient, 20*time.Millisecond)

	// Execute
	require.NoError(t, h.Start())

	// the loop keeps going after a failed publish
	for i := 0; i < 2; i++ {
		select {
		case <-published:
		case <-time.After(2 * time.Second):
			t.Fatal("heartbeat loop stopped after a publish error")
		}
	}

	// Assert
	assert.NoError(t, h.Stop())
}
