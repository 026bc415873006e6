// SoC Hub - single-board computer telemetry and fan control hub.
//
// The hub bridges local sensor and actuator state to an MQTT broker and
// onward to a cloud telemetry service. It maintains one resilient broker
// session, publishes SoC temperature telemetry on a fixed cadence, relays
// samples to the cloud on a slower cadence, and drives the cooling fan
// through a hysteresis state machine that also accepts manual overrides
// over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sochub/soc-hub/internal/cloud"
	"github.com/sochub/soc-hub/internal/fan"
	"github.com/sochub/soc-hub/internal/hub"
	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/infrastructure/influxdb"
	"github.com/sochub/soc-hub/internal/infrastructure/logging"
	"github.com/sochub/soc-hub/internal/infrastructure/mqtt"
	"github.com/sochub/soc-hub/internal/sensor"
	"github.com/sochub/soc-hub/internal/telemetry"
	"github.com/sochub/soc-hub/internal/topics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SoC Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Resolve the topic namespace
	registry, err := topics.Resolve(cfg.Topics)
	if err != nil {
		return fmt.Errorf("resolving topics: %w", err)
	}
	statusTopic, ok := registry.LWT()
	if !ok {
		return fmt.Errorf("resolving topics: no topic carries the lwt role")
	}
	log.Info("topic namespace resolved",
		"topics", len(registry.Topics()),
		"filters", len(registry.Filters()),
		"status_topic", statusTopic.Value,
	)

	// Create the broker session (connection is made by the hub, so startup
	// survives a broker that is still coming up)
	session := mqtt.New(cfg.MQTT, statusTopic)
	session.SetLogger(log.With("component", "mqtt"))
	session.SetOnConnect(func() {
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	})
	session.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Cloud relay (optional)
	var relay telemetry.Relay
	if cfg.Cloud.Enabled {
		cloudClient := cloud.New(cfg.Cloud)
		cloudClient.SetLogger(log.With("component", "cloud"))
		defer func() {
			if closeErr := cloudClient.Close(); closeErr != nil {
				log.Error("error closing cloud relay", "error", closeErr)
			}
		}()
		relay = cloudClient
		log.Info("cloud relay enabled",
			"host", cfg.Cloud.Host,
			"channel", cfg.Cloud.ChannelID,
			"field", cfg.Cloud.Field,
		)
	} else {
		log.Info("cloud relay disabled")
	}

	// Telemetry publisher
	publisher, err := buildPublisher(cfg, registry, session, relay, influxClient)
	if err != nil {
		return err
	}
	publisher.SetLogger(log.With("component", "telemetry"))

	// Fan controller
	fanController, err := buildFanController(cfg, registry, session)
	if err != nil {
		return err
	}
	fanController.SetLogger(log.With("component", "fan"))
	if influxClient != nil {
		fanController.SetSink(influxClient)
	}

	// Hub wiring
	hubOpts := hub.Options{
		Config:    cfg,
		Registry:  registry,
		Session:   session,
		Publisher: publisher,
		Fan:       fanController,
		Logger:    log,
	}
	if influxClient != nil {
		hubOpts.Sink = influxClient
	}
	h, err := hub.New(hubOpts)
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}

	err = h.Run(ctx)

	log.Info("SoC Hub stopped")
	return err
}

// getConfigPath returns the configuration file path.
// Uses SOCHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOCHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildPublisher assembles the telemetry publisher from the resolved
// registry topics.
func buildPublisher(cfg *config.Config, registry *topics.Registry, session *mqtt.Session, relay telemetry.Relay, influxClient *influxdb.Client) (*telemetry.Publisher, error) {
	valueTopic, ok := registry.Topic("system_temp_value")
	if !ok {
		return nil, fmt.Errorf("topic %q not defined in registry", "system_temp_value")
	}
	percentTopic, ok := registry.Topic("system_temp_percentage")
	if !ok {
		return nil, fmt.Errorf("topic %q not defined in registry", "system_temp_percentage")
	}

	opts := telemetry.Options{
		Session:        session,
		Sensor:         sensor.NewThermalZone(os.Getenv("SOCHUB_THERMAL_ZONE")),
		ValueTopic:     valueTopic,
		PercentTopic:   percentTopic,
		SensorConfig:   cfg.Sensor,
		RoundingConfig: cfg.Rounding,
		Relay:          relay,
	}
	if influxClient != nil {
		opts.Sink = influxClient
	}

	return telemetry.NewPublisher(opts)
}

// buildFanController assembles the fan controller from the resolved
// registry topics.
func buildFanController(cfg *config.Config, registry *topics.Registry, session *mqtt.Session) (*fan.Controller, error) {
	var t fan.Topics
	for name, dst := range map[string]*topics.Topic{
		"fan_command_control": &t.Command,
		"fan_status_control":  &t.StatusControl,
		"fan_status_percon":   &t.StatusPercOn,
		"fan_status_percoff":  &t.StatusPercOff,
		"fan_status_tempon":   &t.StatusTempOn,
		"fan_status_tempoff":  &t.StatusTempOff,
	} {
		topic, ok := registry.Topic(name)
		if !ok {
			return nil, fmt.Errorf("topic %q not defined in registry", name)
		}
		*dst = topic
	}

	return fan.NewController(cfg.Fan, session, t)
}
