package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for MatterHub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Matter        MatterConfig        `yaml:"matter"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Cache         CacheConfig         `yaml:"cache"`
	Commissioning CommissioningConfig `yaml:"commissioning"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MatterConfig contains settings for the Matter server connection.
type MatterConfig struct {
	// URL is the WebSocket URL of the Matter server.
	// Empty means "derive from the managed server port" (ws://localhost:{port}/ws).
	URL string `yaml:"url"`

	// ConnectTimeout is the maximum time to wait for the initial connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// Reconnect contains reconnection backoff settings.
	Reconnect MatterReconnectConfig `yaml:"reconnect"`

	// Server contains managed Matter server subprocess settings.
	Server MatterServerConfig `yaml:"server"`
}

// MatterReconnectConfig contains Matter client reconnection settings.
type MatterReconnectConfig struct {
	// InitialDelay is the first backoff delay (seconds).
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff (seconds).
	MaxDelay int `yaml:"max_delay"`
}

// MatterServerConfig contains settings for managing the Matter server subprocess.
type MatterServerConfig struct {
	// Managed indicates whether MatterHub should launch and supervise the
	// Matter server itself. If false, the server is expected to be running
	// externally at matter.url.
	Managed bool `yaml:"managed"`

	// Python is the interpreter used to launch the server module.
	// Default: "python3"
	Python string `yaml:"python"`

	// StoragePath is the Matter server's persistent storage directory.
	// Default: "./matter_storage"
	StoragePath string `yaml:"storage_path"`

	// Port is the Matter server WebSocket port. 0 means "API port + 1".
	Port int `yaml:"port"`

	// RestartOnFailure enables automatic restart if the server crashes.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting (seconds).
	// Default: 5
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// StartupTimeout is how long to wait for the server port to accept
	// connections after launch (seconds). Default: 30
	StartupTimeout int `yaml:"startup_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// WebSocketConfig contains event hub WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// CacheConfig contains device cache persistence settings.
type CacheConfig struct {
	// FlushInterval is the maximum time between background persistence
	// flushes (seconds). Dirty state may be flushed sooner.
	FlushInterval int `yaml:"flush_interval"`

	// OccupancyHistoryLimit is the per-device occupancy history cap.
	// Oldest entries are evicted beyond this count. Default 50, maximum 500.
	OccupancyHistoryLimit int `yaml:"occupancy_history_limit"`
}

// CommissioningConfig contains commissioning session settings.
type CommissioningConfig struct {
	// TimeoutSeconds bounds a commissioning session. A session with no
	// backend acknowledgment within this window fails with a timeout and
	// releases its pending name. Default: 120
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// MQTTConfig contains MQTT state mirror settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// TelemetryConfig contains InfluxDB telemetry sink settings.
type TelemetryConfig struct {
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

// maxOccupancyHistoryLimit is the hard ceiling for the per-device
// occupancy history cap, preventing unbounded memory from misconfiguration.
const maxOccupancyHistoryLimit = 500

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MATTERHUB_SECTION_KEY
// For example: MATTERHUB_DATABASE_PATH, MATTERHUB_API_PORT
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

// LoadOrDefault behaves like Load when the file exists and falls back
// to defaults plus environment overrides when it does not. A missing
// config file is a normal first-run condition, not an error.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Default returns a Config with sensible defaults.
//
// The defaults describe a single-host deployment: SQLite alongside the
// binary, a managed Matter server on API port + 1, mirror and telemetry
// disabled.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/matterhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Matter: MatterConfig{
			ConnectTimeout: 10,
			Reconnect: MatterReconnectConfig{
				InitialDelay: 2,
				MaxDelay:     120,
			},
			Server: MatterServerConfig{
				Managed:             true,
				Python:              "python3",
				StoragePath:         "./matter_storage",
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
				StartupTimeout:      30,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 180,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Cache: CacheConfig{
			FlushInterval:         10,
			OccupancyHistoryLimit: 50,
		},
		Commissioning: CommissioningConfig{
			TimeoutSeconds: 120,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "matterhub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MATTERHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("MATTERHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Matter
	if v := os.Getenv("MATTERHUB_MATTER_URL"); v != "" {
		cfg.Matter.URL = v
	}

	// API
	if v := os.Getenv("MATTERHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MATTERHUB_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("MATTERHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MATTERHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MATTERHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Telemetry
	if v := os.Getenv("MATTERHUB_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Matter validation
	if c.Matter.Reconnect.InitialDelay < 1 {
		errs = append(errs, "matter.reconnect.initial_delay must be at least 1 second")
	}
	if c.Matter.Reconnect.MaxDelay < c.Matter.Reconnect.InitialDelay {
		errs = append(errs, "matter.reconnect.max_delay must not be below initial_delay")
	}
	if !c.Matter.Server.Managed && c.Matter.URL == "" && c.Matter.Server.Port == 0 {
		errs = append(errs, "matter.url is required when matter.server.managed is false")
	}

	// Cache validation
	if c.Cache.OccupancyHistoryLimit < 1 {
		errs = append(errs, "cache.occupancy_history_limit must be at least 1")
	}
	if c.Cache.OccupancyHistoryLimit > maxOccupancyHistoryLimit {
		errs = append(errs, fmt.Sprintf("cache.occupancy_history_limit must not exceed %d", maxOccupancyHistoryLimit))
	}
	if c.Cache.FlushInterval < 1 {
		errs = append(errs, "cache.flush_interval must be at least 1 second")
	}

	// Commissioning validation
	if c.Commissioning.TimeoutSeconds < 1 {
		errs = append(errs, "commissioning.timeout_seconds must be at least 1")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	// Telemetry validation
	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" {
			errs = append(errs, "telemetry.bucket is required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MatterServerPort returns the effective Matter server port.
// An unset port follows the original deployment convention: API port + 1.
func (c *Config) MatterServerPort() int {
	if c.Matter.Server.Port != 0 {
		return c.Matter.Server.Port
	}
	return c.API.Port + 1
}

// MatterURL returns the effective Matter server WebSocket URL.
func (c *Config) MatterURL() string {
	if c.Matter.URL != "" {
		return c.Matter.URL
	}
	return fmt.Sprintf("ws://localhost:%d/ws", c.MatterServerPort())
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

// GetFlushInterval returns the cache flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Cache.FlushInterval) * time.Second
}

// GetCommissioningTimeout returns the commissioning session timeout as a Duration.
func (c *Config) GetCommissioningTimeout() time.Duration {
	return time.Duration(c.Commissioning.TimeoutSeconds) * time.Second
}
