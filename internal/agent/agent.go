// Package agent assembles the device side: pin table, scheduler, status
// indicator, dispatcher, listener and the optional presence heartbeat.
package agent

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/dispatcher"
	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/benmeehan/gpio-agent/internal/indicator"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/internal/pins"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/benmeehan/gpio-agent/internal/scheduler"
	"github.com/benmeehan/gpio-agent/internal/server"
	"github.com/benmeehan/gpio-agent/internal/service_registry"
	"github.com/benmeehan/gpio-agent/internal/services"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/benmeehan/gpio-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ErrReset is returned by Run when the device asked to be restarted.
var ErrReset = errors.New("device reset requested")

// resetNotifier is implemented by drivers that report resets instead of
// rebooting the host.
type resetNotifier interface {
	OnReset(fn func(soft bool))
}

// Agent owns one generation of device state. After Run returns a new Agent
// must be built.
type Agent struct {
	hw     hal.Hardware
	device identity.DeviceInfoInterface
	logger zerolog.Logger

	pins       *pins.Table
	scheduler  *scheduler.Scheduler
	indicator  *indicator.Indicator
	dispatcher *dispatcher.Dispatcher
	server     *server.Server
	registry   *service_registry.ServiceRegistry

	resets chan bool

	mu      sync.Mutex
	started time.Time
}

// New wires an agent from cfg. mqttClient may be nil, in which case no
// presence heartbeat is published.
func New(cfg *utils.Config, hw hal.Hardware, device identity.DeviceInfoInterface, fileClient file.FileOperations,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) (*Agent, error) {

	var tlsConfig *tls.Config
	if cfg.Server.TLS.Enabled {
		var err error
		tlsConfig, err = server.LoadTLSConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, fileClient)
		if err != nil {
			return nil, err
		}
	}

	a := &Agent{
		hw:     hw,
		device: device,
		logger: logger,
		resets: make(chan bool, 1),
	}

	a.pins = pins.NewTable(hw, logger.With().Str("component", "pins").Logger())
	a.scheduler = scheduler.New(logger.With().Str("component", "scheduler").Logger())
	a.indicator = indicator.New(hw, indicator.Config{
		IdleOn:    cfg.Indicator.IdleOn,
		IdleOff:   cfg.Indicator.IdleOff,
		ActiveOn:  cfg.Indicator.ActiveOn,
		ActiveOff: cfg.Indicator.ActiveOff,
	}, logger.With().Str("component", "indicator").Logger())
	a.dispatcher = dispatcher.New(dispatcher.Config{
		ResetDelay: cfg.Actions.ResetDelay,
		SleepDelay: cfg.Actions.SleepDelay,
		MaxBlink:   cfg.Actions.MaxBlink,
	}, hw, a.pins, a.scheduler, a.indicator, a, logger.With().Str("component", "dispatcher").Logger())
	a.server = server.NewServer(server.Config{
		Address:          cfg.Server.Address,
		Port:             cfg.Server.Port,
		TLS:              tlsConfig,
		MaxConnections:   cfg.Server.MaxConnections,
		MaxMessageSize:   cfg.Server.MaxMessageSize,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
	}, a.dispatcher, a.indicator, logger.With().Str("component", "server").Logger())

	// stopped in reverse: the listener goes first so connections release
	// the indicator, the scheduler goes last and settles pending reverts
	a.registry = service_registry.NewServiceRegistry(logger)
	a.registry.RegisterService("scheduler", a.scheduler)
	a.registry.RegisterService("indicator", a.indicator)
	a.registry.RegisterService("server", a.server)

	if cfg.Heartbeat.Enabled {
		if mqttClient == nil {
			logger.Warn().Msg("Heartbeat is enabled but no MQTT client is available, skipping")
		} else {
			a.registry.RegisterService("heartbeat", services.NewHeartbeatService(
				cfg.Heartbeat.Topic,
				cfg.Heartbeat.Interval,
				cfg.Heartbeat.QOS,
				device,
				a,
				mqttClient,
				logger.With().Str("component", "heartbeat").Logger(),
			))
		}
	}

	if n, ok := hw.(resetNotifier); ok {
		n.OnReset(a.RequestReset)
	}

	return a, nil
}

// Run starts every service and blocks until ctx is cancelled or a reset is
// requested. The status LED is off when Run returns, whatever the outcome.
func (a *Agent) Run(ctx context.Context) (err error) {
	defer func() {
		if offErr := a.hw.LEDOff(); offErr != nil {
			a.logger.Error().Err(offErr).Msg("Failed to turn status LED off")
			err = errors.Join(err, offErr)
		}
	}()

	if err := a.registry.StartServices(); err != nil {
		return err
	}

	a.mu.Lock()
	a.started = time.Now()
	a.mu.Unlock()

	a.logger.Info().Str("address", a.server.Addr().String()).Str("device_id", a.device.GetDeviceID()).
		Msg("Agent running")

	var result error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down agent")
	case soft := <-a.resets:
		a.logger.Warn().Bool("soft", soft).Msg("Reset requested, restarting agent")
		result = ErrReset
	}

	if err := a.registry.StopServices(); err != nil {
		result = errors.Join(result, err)
	}
	return result
}

// RequestReset makes Run return ErrReset. It never blocks.
func (a *Agent) RequestReset(soft bool) {
	select {
	case a.resets <- soft:
	default:
	}
}

// Addr returns the listener address, nil when not running.
func (a *Agent) Addr() net.Addr {
	return a.server.Addr()
}

// Dispatcher returns the command dispatcher of this agent.
func (a *Agent) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

func (a *Agent) uptime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started.IsZero() {
		return 0
	}
	return time.Since(a.started)
}

// Diagnostics reports agent level fields for get_info.
func (a *Agent) Diagnostics() map[string]any {
	return map[string]any{
		"device_id":       a.device.GetDeviceID(),
		"device_name":     a.device.GetDeviceName(),
		"connections":     a.server.Connections(),
		"sessions":        a.server.Sessions(),
		"uptime_s":        a.uptime().Seconds(),
		"pending_effects": a.scheduler.Pending(),
		"indicator":       a.indicator.Mode().String(),
	}
}

// DeviceStatus is the snapshot published in presence heartbeats.
func (a *Agent) DeviceStatus() models.DeviceStatus {
	status := models.DeviceStatus{
		Status:         constants.StatusIdle,
		Version:        protocol.Version,
		Connections:    a.server.Connections(),
		UptimeSeconds:  a.uptime().Seconds(),
		PendingEffects: a.scheduler.Pending(),
		IndicatorMode:  a.indicator.Mode().String(),
	}
	if addr := a.server.Addr(); addr != nil {
		status.Address = addr.String()
	}
	if status.Connections > 0 {
		status.Status = constants.StatusActive
	}
	return status
}
