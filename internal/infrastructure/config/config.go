package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Sensi Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Command   CommandConfig   `yaml:"command"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AuthConfig contains OAuth session settings for the Sensi cloud.
type AuthConfig struct {
	// TokenURL is the OAuth token endpoint used for refresh-token exchange.
	TokenURL string `yaml:"token_url"`

	// ClientID and ClientSecret identify this client to the OAuth endpoint.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RefreshToken is the long-lived token obtained during account setup.
	RefreshToken string `yaml:"refresh_token"`

	// StorePath is the SQLite file used to persist rotated tokens.
	// Empty disables persistence; the session then lives in memory only.
	StorePath string `yaml:"store_path"`

	// RenewLeeway is how many seconds before expiry a bearer token is
	// considered stale and renewed proactively.
	RenewLeeway int `yaml:"renew_leeway"`
}

// TransportConfig contains push-channel and polling settings.
type TransportConfig struct {
	// URL is the realtime websocket endpoint.
	URL string `yaml:"url"`

	// Capabilities is the list of capability names requested on connect.
	Capabilities []string `yaml:"capabilities"`

	ConnectTimeout int                      `yaml:"connect_timeout"`
	Reconnect      TransportReconnectConfig `yaml:"reconnect"`

	// DegradedThreshold is the number of consecutive connection failures
	// after which snapshots are flagged as possibly stale.
	DegradedThreshold int `yaml:"degraded_threshold"`

	// PollInterval is the full-state polling fallback interval in seconds.
	// Polling runs regardless of push-channel health.
	PollInterval int `yaml:"poll_interval"`
}

// TransportReconnectConfig contains reconnection backoff settings.
type TransportReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// CommandConfig contains command pipeline settings.
type CommandConfig struct {
	// AckTimeout is the per-attempt acknowledgment wait in seconds.
	AckTimeout int `yaml:"ack_timeout"`

	// MaxRetries bounds how many times an unacknowledged command is resent.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the delay between retries in seconds.
	RetryBackoff int `yaml:"retry_backoff"`
}

// MQTTConfig contains settings for the optional MQTT snapshot bridge.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains settings for the optional telemetry recorder.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSICORE_SECTION_KEY
// For example: SENSICORE_AUTH_REFRESH_TOKEN, SENSICORE_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			TokenURL:    "https://oauth.sensiapi.io/token",
			ClientID:    "fleet",
			RenewLeeway: 60,
		},
		Transport: TransportConfig{
			URL: "wss://rt.sensiapi.io/thermostat/",
			Capabilities: []string{
				"display_humidity",
				"operating_mode_settings",
				"fan_mode_settings",
				"continuous_backlight",
				"degrees_fc",
				"display_time",
				"keypad_lockout",
				"compressor_lockout",
				"early_start",
				"circulating_fan",
				"humidity_control",
			},
			ConnectTimeout: 10,
			Reconnect: TransportReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			DegradedThreshold: 3,
			PollInterval:      30,
		},
		Command: CommandConfig{
			AckTimeout:   5,
			MaxRetries:   2,
			RetryBackoff: 2,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensi-core",
			},
			QoS:         1,
			TopicPrefix: "sensi",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSICORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Auth - secrets should come from the environment in production
	if v := os.Getenv("SENSICORE_AUTH_REFRESH_TOKEN"); v != "" {
		cfg.Auth.RefreshToken = v
	}
	if v := os.Getenv("SENSICORE_AUTH_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}

	// MQTT
	if v := os.Getenv("SENSICORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SENSICORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSICORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SENSICORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Auth validation
	if c.Auth.TokenURL == "" {
		errs = append(errs, "auth.token_url is required")
	}
	if c.Auth.ClientID == "" {
		errs = append(errs, "auth.client_id is required")
	}
	// A persisted token store may hold a rotated refresh token, so the
	// configured one is only mandatory when no store is configured.
	if c.Auth.RefreshToken == "" && c.Auth.StorePath == "" {
		errs = append(errs, "auth.refresh_token is required (set SENSICORE_AUTH_REFRESH_TOKEN environment variable)")
	}

	// Transport validation
	if c.Transport.URL == "" {
		errs = append(errs, "transport.url is required")
	}
	if !strings.HasPrefix(c.Transport.URL, "ws://") && !strings.HasPrefix(c.Transport.URL, "wss://") {
		errs = append(errs, "transport.url must be a ws:// or wss:// URL")
	}
	if c.Transport.Reconnect.InitialDelay < 1 {
		errs = append(errs, "transport.reconnect.initial_delay must be at least 1 second")
	}
	if c.Transport.Reconnect.MaxDelay < c.Transport.Reconnect.InitialDelay {
		errs = append(errs, "transport.reconnect.max_delay must not be less than initial_delay")
	}
	if c.Transport.DegradedThreshold < 1 {
		errs = append(errs, "transport.degraded_threshold must be at least 1")
	}
	if c.Transport.PollInterval < 1 {
		errs = append(errs, "transport.poll_interval must be at least 1 second")
	}

	// Command validation
	if c.Command.AckTimeout < 1 {
		errs = append(errs, "command.ack_timeout must be at least 1 second")
	}
	if c.Command.MaxRetries < 0 {
		errs = append(errs, "command.max_retries must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the transport connect timeout as a Duration.
func (c *TransportConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetPollInterval returns the polling fallback interval as a Duration.
func (c *TransportConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// GetAckTimeout returns the per-attempt acknowledgment timeout as a Duration.
func (c *CommandConfig) GetAckTimeout() time.Duration {
	return time.Duration(c.AckTimeout) * time.Second
}

// GetRetryBackoff returns the delay between command retries as a Duration.
func (c *CommandConfig) GetRetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoff) * time.Second
}

// GetRenewLeeway returns the token renewal leeway as a Duration.
func (c *AuthConfig) GetRenewLeeway() time.Duration {
	return time.Duration(c.RenewLeeway) * time.Second
}
