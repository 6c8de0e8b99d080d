package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/gpio-agent/internal/agent"
	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/benmeehan/gpio-agent/internal/info"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/benmeehan/gpio-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "agent",
		Short:        "GPIO command agent",
		Long:         "Serves pin-level I/O commands over TCP or TLS using line-delimited JSON.",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "path to the configuration file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(configFile, fileClient)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Warn().Err(err).Msg("Failed to load device information, starting with a new identity")
	}
	if _, err := deviceInfo.EnsureDeviceID(); err != nil {
		log.Error().Err(err).Msg("Failed to persist device ID")
	}
	log = log.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()

	diagnostics := info.NewDefaultRegistry(config.Hardware.InfoCollectors, config.Hardware.InfoTimeout,
		log.With().Str("component", "info").Logger())
	defer diagnostics.Close()

	hw, err := hal.New(config.Hardware.Driver, diagnostics, log.With().Str("component", "hal").Logger())
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize hardware")
		return err
	}

	var mqttClient mqtt.MQTTClient
	if config.Heartbeat.Enabled {
		// a unique client ID per process keeps restarts from kicking each other off the broker
		clientID := config.Heartbeat.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		svc := mqtt.NewMqttService(fileClient)
		if err := svc.Initialize(config.Heartbeat.Broker, clientID, config.Heartbeat.CACertificate,
			config.Heartbeat.ConnectTimeout); err != nil {
			log.Error().Err(err).Msg("Failed to initialize MQTT connection, heartbeat disabled")
		} else {
			mqttClient = svc
			defer svc.Disconnect(250)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, config, hw, deviceInfo, fileClient, mqttClient, log)
}

// serve runs the agent until ctx is cancelled, rebuilding it after every
// device reset.
func serve(ctx context.Context, config *utils.Config, hw hal.Hardware, deviceInfo identity.DeviceInfoInterface,
	fileClient file.FileOperations, mqttClient mqtt.MQTTClient, log zerolog.Logger) error {

	for {
		a, err := agent.New(config, hw, deviceInfo, fileClient, mqttClient, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create agent")
			return err
		}

		err = a.Run(ctx)
		switch {
		case errors.Is(err, agent.ErrReset) && ctx.Err() == nil:
			log.Info().Msg("Restarting agent after reset")
			continue
		case err != nil && !errors.Is(err, agent.ErrReset):
			log.Error().Err(err).Msg("Agent stopped with error")
			return err
		}

		log.Info().Msg("Agent stopped")
		return nil
	}
}
