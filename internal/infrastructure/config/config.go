package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers for the definition store.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure for Tagwatch Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	OPCUA     OPCUAConfig     `yaml:"opcua"`
	Alarms    AlarmConfig     `yaml:"alarms"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NATS      NATSConfig      `yaml:"nats"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies this installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig selects and configures the store holding connection, tag and rule definitions.
type DatabaseConfig struct {
	// Driver is "sqlite" (embedded, migrated on startup) or "postgres".
	Driver string `yaml:"driver"`

	// SQLite settings.
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// DSN is the PostgreSQL connection string (postgres driver only).
	DSN string `yaml:"dsn"`
}

// OPCUAConfig contains the industrial protocol session and subscription parameters.
type OPCUAConfig struct {
	// PublishingInterval is the requested subscription publishing interval.
	PublishingInterval time.Duration `yaml:"publishing_interval"`

	// SamplingInterval is the requested per-item sampling interval.
	SamplingInterval time.Duration `yaml:"sampling_interval"`

	// QueueSize is the server-side queue depth per monitored item.
	QueueSize uint32 `yaml:"queue_size"`

	// DiscardOldest drops the oldest queued sample when the queue is full.
	DiscardOldest bool `yaml:"discard_oldest"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// SecurityMode is one of "None", "Sign", "SignAndEncrypt".
	SecurityMode string `yaml:"security_mode"`

	// SecurityPolicy is the policy URI suffix, e.g. "None" or "Basic256Sha256".
	SecurityPolicy string `yaml:"security_policy"`

	// Retry governs session-open attempts for a single connection.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig is the explicit session-open retry policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// AlarmConfig controls how alarm timestamps are rendered for operators.
type AlarmConfig struct {
	Timezone   string `yaml:"timezone"`
	TimeFormat string `yaml:"time_format"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// NATSConfig configures the optional NATS event relay.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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
// Environment variables follow the pattern: TAGWATCH_SECTION_KEY
// For example: TAGWATCH_DATABASE_PATH, TAGWATCH_DATABASE_DSN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with the built-in defaults.
// The subscription values mirror what the monitored PLCs were commissioned with:
// one second publishing, 500ms sampling, a single-slot queue that drops the oldest sample.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Tagwatch",
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/tagwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		OPCUA: OPCUAConfig{
			PublishingInterval: time.Second,
			SamplingInterval:   500 * time.Millisecond,
			QueueSize:          1,
			DiscardOldest:      true,
			ConnectTimeout:     10 * time.Second,
			RequestTimeout:     10 * time.Second,
			SecurityMode:       "None",
			SecurityPolicy:     "None",
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: time.Second,
				MaxDelay:     10 * time.Second,
				Multiplier:   2.0,
				Jitter:       true,
			},
		},
		Alarms: AlarmConfig{
			Timezone:   "Local",
			TimeFormat: "15:04:05",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tagwatch-core",
			},
			QoS:         0,
			TopicPrefix: "tagwatch",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "tagwatch",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TAGWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("TAGWATCH_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TAGWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TAGWATCH_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// MQTT
	if v := os.Getenv("TAGWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TAGWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TAGWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// NATS
	if v := os.Getenv("TAGWATCH_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}

	// API
	if v := os.Getenv("TAGWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TAGWATCH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv("TAGWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver (set TAGWATCH_DATABASE_DSN)")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (use sqlite or postgres)", c.Database.Driver))
	}

	if c.OPCUA.PublishingInterval <= 0 {
		errs = append(errs, "opcua.publishing_interval must be positive")
	}
	if c.OPCUA.SamplingInterval <= 0 {
		errs = append(errs, "opcua.sampling_interval must be positive")
	}
	if c.OPCUA.QueueSize < 1 {
		errs = append(errs, "opcua.queue_size must be at least 1")
	}
	if c.OPCUA.Retry.MaxAttempts < 1 {
		errs = append(errs, "opcua.retry.max_attempts must be at least 1")
	}
	if c.OPCUA.Retry.MaxDelay > 0 && c.OPCUA.Retry.MaxDelay < c.OPCUA.Retry.InitialDelay {
		errs = append(errs, "opcua.retry.max_delay must not be shorter than initial_delay")
	}

	if _, err := c.Alarms.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("alarms.timezone: %v", err))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location resolves the configured alarm timezone.
// "Local" and an empty value both mean the host's local zone.
func (a AlarmConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
