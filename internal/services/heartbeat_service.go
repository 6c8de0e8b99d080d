package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/benmeehan/gpio-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// StatusProvider reports the current agent state.
type StatusProvider interface {
	DeviceStatus() models.DeviceStatus
}

// HeartbeatService publishes periodic presence messages over MQTT.
type HeartbeatService struct {
	PubTopic   string
	Interval   time.Duration
	QOS        int
	DeviceInfo identity.DeviceInfoInterface
	Status     StatusProvider
	MqttClient mqtt.MQTTClient
	Logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService.
func NewHeartbeatService(pubTopic string, interval time.Duration, qos int, deviceInfo identity.DeviceInfoInterface,
	status StatusProvider, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *HeartbeatService {

	return &HeartbeatService{
		PubTopic:   pubTopic,
		Interval:   interval,
		QOS:        qos,
		DeviceInfo: deviceInfo,
		Status:     status,
		MqttClient: mqttClient,
		Logger:     logger,
	}
}

// Start launches the heartbeat loop in a separate goroutine. The first
// heartbeat is sent right away.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop(h.ctx)
	}()

	h.Logger.Info().Str("topic", h.PubTopic).Dur("interval", h.Interval).Msg("HeartbeatService started successfully")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

func (h *HeartbeatService) runHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.publish()
	for {
		select {
		case <-ticker.C:
			h.publish()
		case <-ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

func (h *HeartbeatService) publish() {
	heartbeatMessage := models.Heartbeat{
		DeviceID:     h.DeviceInfo.GetDeviceID(),
		DeviceName:   h.DeviceInfo.GetDeviceName(),
		Timestamp:    time.Now(),
		DeviceStatus: h.Status.DeviceStatus(),
	}

	payload, err := json.Marshal(heartbeatMessage)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to serialize heartbeat message")
		return
	}

	token := h.MqttClient.Publish(h.PubTopic, byte(h.QOS), false, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to publish heartbeat message")
	} else {
		h.Logger.Debug().Str("status", heartbeatMessage.Status).Msg("Heartbeat published successfully")
	}
}
