package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the PumaGuard presence core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	State     StateConfig     `yaml:"state"`
	Identity  IdentityConfig  `yaml:"identity"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Plug      PlugConfig      `yaml:"plug"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
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

// WebSocketConfig contains change stream transport settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	// SendBuffer is the per-subscriber queue length. Events beyond it are dropped.
	SendBuffer int `yaml:"send_buffer"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional: when disabled, DHCP events arrive over HTTP only and
// presence is not mirrored to the broker.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for presence telemetry.
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

// StateConfig locates the flat state document holding devices, identity
// history and runtime settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// IdentityConfig holds the hostname prefixes that identify each device kind.
// Matching is case-insensitive.
type IdentityConfig struct {
	CameraPatterns []string `yaml:"camera_patterns"`
	PlugPatterns   []string `yaml:"plug_patterns"`
}

// HeartbeatConfig holds probe defaults. Per-kind values are used to seed the
// state file the first time it is created; afterwards the state file wins.
type HeartbeatConfig struct {
	Camera ProbeDefaults `yaml:"camera"`
	Plug   ProbeDefaults `yaml:"plug"`
	// Concurrency bounds simultaneous probes within one cycle.
	Concurrency int `yaml:"concurrency"`
}

// ProbeDefaults are the initial heartbeat and retention settings for one kind.
type ProbeDefaults struct {
	Enabled        bool   `yaml:"enabled"`
	Interval       int    `yaml:"interval"`
	Method         string `yaml:"method"`
	TCPPort        int    `yaml:"tcp_port"`
	TCPTimeout     int    `yaml:"tcp_timeout"`
	ICMPTimeout    int    `yaml:"icmp_timeout"`
	RetentionOn    bool   `yaml:"retention_enabled"`
	RetentionHours int    `yaml:"retention_hours"`
}

// PlugConfig contains smart plug control settings.
type PlugConfig struct {
	// Timeout is the HTTP timeout for switch commands, in seconds.
	Timeout int `yaml:"timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: PUMAGUARD_SECTION_KEY
// For example: PUMAGUARD_STATE_PATH, PUMAGUARD_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// A missing .env is normal; anything else is worth failing on.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "pumaguard-001",
			Name: "PumaGuard",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     64,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pumaguard-presence",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "pumaguard",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		State: StateConfig{
			Path: "./data/pumaguard-settings.yaml",
		},
		Identity: IdentityConfig{
			CameraPatterns: []string{"microseven"},
			PlugPatterns:   []string{"shellyplug"},
		},
		Heartbeat: HeartbeatConfig{
			Camera: ProbeDefaults{
				Enabled:        true,
				Interval:       60,
				Method:         "tcp",
				TCPPort:        80,
				TCPTimeout:     3,
				ICMPTimeout:    2,
				RetentionOn:    true,
				RetentionHours: 24,
			},
			Plug: ProbeDefaults{
				Enabled:        true,
				Interval:       60,
				Method:         "tcp",
				TCPPort:        80,
				TCPTimeout:     3,
				ICMPTimeout:    2,
				RetentionOn:    true,
				RetentionHours: 24,
			},
			Concurrency: 4,
		},
		Plug: PlugConfig{
			Timeout: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PUMAGUARD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// State
	if v := os.Getenv("PUMAGUARD_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}

	// API
	if v := os.Getenv("PUMAGUARD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PUMAGUARD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("PUMAGUARD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PUMAGUARD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PUMAGUARD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PUMAGUARD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("PUMAGUARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.State.Path == "" {
		errs = append(errs, "state.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.WebSocket.SendBuffer < 1 {
		errs = append(errs, "websocket.send_buffer must be at least 1")
	}

	if len(c.Identity.CameraPatterns) == 0 && len(c.Identity.PlugPatterns) == 0 {
		errs = append(errs, "identity needs at least one camera or plug pattern")
	}

	for name, p := range map[string]ProbeDefaults{"camera": c.Heartbeat.Camera, "plug": c.Heartbeat.Plug} {
		switch p.Method {
		case "icmp", "tcp", "both":
		default:
			errs = append(errs, fmt.Sprintf("heartbeat.%s.method must be icmp, tcp or both", name))
		}
		if p.Interval < 1 {
			errs = append(errs, fmt.Sprintf("heartbeat.%s.interval must be positive", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
