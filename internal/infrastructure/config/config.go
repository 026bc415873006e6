package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SoC Hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Topics   TopicsConfig   `yaml:"topics"`
	Periods  PeriodsConfig  `yaml:"periods"`
	Rounding RoundingConfig `yaml:"rounding"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Fan      FanConfig      `yaml:"fan"`
	Cloud    CloudConfig    `yaml:"cloud"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials and the retry
// policy applied when the broker rejects them.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// RetryOnAuthError keeps the reconnect loop attempting after the broker
	// rejects credentials. When false (default), an auth rejection halts
	// further connect attempts; transient transport failures always retry.
	RetryOnAuthError bool `yaml:"retry_on_auth_error"`
}

// TopicsConfig contains the seed vocabulary and the topic/filter definitions
// resolved against it at startup.
type TopicsConfig struct {
	// Seeds maps seed names to raw values. Values may reference other seeds
	// with %(name)s placeholders, e.g. script: "%(server)s/iot".
	Seeds map[string]string `yaml:"seeds"`

	Publish   []TopicDef  `yaml:"publish"`
	Subscribe []FilterDef `yaml:"subscribe"`
}

// TopicDef defines a named topic used for publishing or exact-match dispatch.
type TopicDef struct {
	Name   string `yaml:"name"`
	Topic  string `yaml:"topic"`
	QoS    int    `yaml:"qos"`
	Retain bool   `yaml:"retain"`

	// Role marks special-purpose topics. Currently only "lwt" is recognised;
	// exactly one topic may carry it.
	Role string `yaml:"role,omitempty"`
}

// FilterDef defines a named subscription filter. Filters may contain MQTT
// wildcards (+, #) and are never published to.
type FilterDef struct {
	Name   string `yaml:"name"`
	Filter string `yaml:"filter"`
	QoS    int    `yaml:"qos"`
}

// PeriodsConfig contains the three independent task periods, in seconds.
type PeriodsConfig struct {
	ConnectionCheck int `yaml:"connection_check"`
	Telemetry       int `yaml:"telemetry"`
	Cloud           int `yaml:"cloud"`
}

// RoundingConfig contains decimal precisions for published readings.
type RoundingConfig struct {
	Temperature int `yaml:"temperature"`
	Percentage  int `yaml:"percentage"`
}

// SensorConfig contains settings for the temperature sensor collaborator.
type SensorConfig struct {
	// MaxTemperature is the reading that corresponds to 100%. Used to
	// convert the sensor's native unit into a percentage.
	MaxTemperature float64 `yaml:"max_temperature"`
}

// FanConfig contains the fan controller hysteresis thresholds, in percent.
type FanConfig struct {
	ThresholdOnPercent  float64 `yaml:"threshold_on_percent"`
	ThresholdOffPercent float64 `yaml:"threshold_off_percent"`
}

// CloudConfig contains cloud relay settings for the ThingSpeak-compatible
// MQTT endpoint.
type CloudConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	WriteAPIKey string `yaml:"write_api_key"`
	ChannelID   string `yaml:"channel_id"`

	// Field is the channel field index (1-8) the relayed value is written to.
	Field int `yaml:"field"`

	// RetryOnAuthError keeps relay ticks dialling after the cloud endpoint
	// rejects credentials, mirroring mqtt.auth.retry_on_auth_error. When
	// false (default), a rejection halts further attempts.
	RetryOnAuthError bool `yaml:"retry_on_auth_error"`
}

// InfluxDBConfig contains optional local time-series sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Hardcoded valid ranges. Out-of-range values fail startup; they are never
// silently clamped.
const (
	MinConnectionCheckPeriod = 5
	MaxConnectionCheckPeriod = 180
	MinTelemetryPeriod       = 1
	MaxTelemetryPeriod       = 120
	MinCloudPeriod           = 15
	MaxCloudPeriod           = 600

	MinRounding = 0
	MaxRounding = 6

	MinCloudField = 1
	MaxCloudField = 8
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SOCHUB_SECTION_KEY
// For example: SOCHUB_MQTT_HOST, SOCHUB_CLOUD_WRITE_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The default topic namespace mirrors the hub's seed vocabulary:
// server, script (server/iot), system (server/soc) and fan (server/fan).
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "soc-hub",
			},
			QoS: 0,
		},
		Topics: TopicsConfig{
			Seeds: map[string]string{
				"server": "server",
				"script": "%(server)s/iot",
				"system": "%(server)s/soc",
				"fan":    "%(server)s/fan",
			},
			Publish: []TopicDef{
				{Name: "iot_lwt", Topic: "%(script)s/lwt", QoS: 0, Retain: true, Role: "lwt"},
				{Name: "iot_command_control", Topic: "%(script)s/cmd/control", QoS: 0},
				{Name: "system_temp_value", Topic: "%(system)s/temp/value", QoS: 0},
				{Name: "system_temp_percentage", Topic: "%(system)s/temp/percentage", QoS: 0},
				{Name: "fan_command_control", Topic: "%(fan)s/control", QoS: 0},
				{Name: "fan_cmd_control", Topic: "%(fan)s/cmd/control", QoS: 0},
				{Name: "fan_cmd_percon", Topic: "%(fan)s/cmd/percon", QoS: 0},
				{Name: "fan_cmd_percoff", Topic: "%(fan)s/cmd/percoff", QoS: 0},
				{Name: "fan_status_control", Topic: "%(fan)s/status/control", QoS: 0, Retain: true},
				{Name: "fan_status_percon", Topic: "%(fan)s/status/percon", QoS: 0},
				{Name: "fan_status_percoff", Topic: "%(fan)s/status/percoff", QoS: 0},
				{Name: "fan_status_tempon", Topic: "%(fan)s/status/tempon", QoS: 0},
				{Name: "fan_status_tempoff", Topic: "%(fan)s/status/tempoff", QoS: 0},
			},
			Subscribe: []FilterDef{
				{Name: "filter_iot", Filter: "%(script)s/cmd/+", QoS: 0},
				{Name: "filter_fan", Filter: "%(fan)s/cmd/+", QoS: 0},
			},
		},
		Periods: PeriodsConfig{
			ConnectionCheck: 15,
			Telemetry:       5,
			Cloud:           60,
		},
		Rounding: RoundingConfig{
			Temperature: 1,
			Percentage:  1,
		},
		Sensor: SensorConfig{
			MaxTemperature: 85.0,
		},
		Fan: FanConfig{
			ThresholdOnPercent:  70.0,
			ThresholdOffPercent: 60.0,
		},
		Cloud: CloudConfig{
			Enabled: false,
			Host:    "mqtt3.thingspeak.com",
			Port:    1883,
			Field:   1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOCHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SOCHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SOCHUB_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SOCHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SOCHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Cloud
	if v := os.Getenv("SOCHUB_CLOUD_WRITE_API_KEY"); v != "" {
		cfg.Cloud.WriteAPIKey = v
	}
	if v := os.Getenv("SOCHUB_CLOUD_CHANNEL_ID"); v != "" {
		cfg.Cloud.ChannelID = v
	}

	// InfluxDB
	if v := os.Getenv("SOCHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration against the hardcoded valid ranges.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Topic definitions
	if len(c.Topics.Seeds) == 0 {
		errs = append(errs, "topics.seeds must define at least one seed")
	}
	for _, def := range c.Topics.Publish {
		if def.Name == "" || def.Topic == "" {
			errs = append(errs, "topics.publish entries require name and topic")
			continue
		}
		if def.QoS < 0 || def.QoS > 2 {
			errs = append(errs, fmt.Sprintf("topics.publish.%s: qos must be 0, 1, or 2", def.Name))
		}
	}
	for _, def := range c.Topics.Subscribe {
		if def.Name == "" || def.Filter == "" {
			errs = append(errs, "topics.subscribe entries require name and filter")
			continue
		}
		if def.QoS < 0 || def.QoS > 2 {
			errs = append(errs, fmt.Sprintf("topics.subscribe.%s: qos must be 0, 1, or 2", def.Name))
		}
	}

	// Period validation
	if c.Periods.ConnectionCheck < MinConnectionCheckPeriod || c.Periods.ConnectionCheck > MaxConnectionCheckPeriod {
		errs = append(errs, fmt.Sprintf("periods.connection_check must be between %d and %d seconds",
			MinConnectionCheckPeriod, MaxConnectionCheckPeriod))
	}
	if c.Periods.Telemetry < MinTelemetryPeriod || c.Periods.Telemetry > MaxTelemetryPeriod {
		errs = append(errs, fmt.Sprintf("periods.telemetry must be between %d and %d seconds",
			MinTelemetryPeriod, MaxTelemetryPeriod))
	}
	if c.Periods.Cloud < MinCloudPeriod || c.Periods.Cloud > MaxCloudPeriod {
		errs = append(errs, fmt.Sprintf("periods.cloud must be between %d and %d seconds",
			MinCloudPeriod, MaxCloudPeriod))
	}
	if c.Periods.Cloud < c.Periods.Telemetry {
		errs = append(errs, "periods.cloud must not be shorter than periods.telemetry")
	}

	// Rounding validation
	if c.Rounding.Temperature < MinRounding || c.Rounding.Temperature > MaxRounding {
		errs = append(errs, fmt.Sprintf("rounding.temperature must be between %d and %d", MinRounding, MaxRounding))
	}
	if c.Rounding.Percentage < MinRounding || c.Rounding.Percentage > MaxRounding {
		errs = append(errs, fmt.Sprintf("rounding.percentage must be between %d and %d", MinRounding, MaxRounding))
	}

	// Sensor validation
	if c.Sensor.MaxTemperature <= 0 {
		errs = append(errs, "sensor.max_temperature must be positive")
	}

	// Fan validation - the hysteresis band must not be inverted
	if c.Fan.ThresholdOffPercent > c.Fan.ThresholdOnPercent {
		errs = append(errs, "fan.threshold_off_percent must not exceed fan.threshold_on_percent")
	}

	// Cloud validation (only when enabled)
	if c.Cloud.Enabled {
		if c.Cloud.Host == "" {
			errs = append(errs, "cloud.host is required when cloud relay is enabled")
		}
		if c.Cloud.Port < 1 || c.Cloud.Port > 65535 {
			errs = append(errs, "cloud.port must be between 1 and 65535")
		}
		if c.Cloud.WriteAPIKey == "" {
			errs = append(errs, "cloud.write_api_key is required when cloud relay is enabled")
		}
		if c.Cloud.ChannelID == "" {
			errs = append(errs, "cloud.channel_id is required when cloud relay is enabled")
		}
		if c.Cloud.Field < MinCloudField || c.Cloud.Field > MaxCloudField {
			errs = append(errs, fmt.Sprintf("cloud.field must be between %d and %d", MinCloudField, MaxCloudField))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectionCheckPeriod returns the connection check period as a Duration.
func (c *Config) GetConnectionCheckPeriod() time.Duration {
	return time.Duration(c.Periods.ConnectionCheck) * time.Second
}

// GetTelemetryPeriod returns the telemetry period as a Duration.
func (c *Config) GetTelemetryPeriod() time.Duration {
	return time.Duration(c.Periods.Telemetry) * time.Second
}

// GetCloudPeriod returns the cloud relay period as a Duration.
func (c *Config) GetCloudPeriod() time.Duration {
	return time.Duration(c.Periods.Cloud) * time.Second
}
