package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for devicelink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device        DeviceConfig   `yaml:"device"`
	Broker        BrokerConfig   `yaml:"broker"`
	TLS           TLSConfig      `yaml:"tls"`
	Subscriptions []string       `yaml:"subscriptions"`
	Announce      AnnounceConfig `yaml:"announce"`
	Database      DatabaseConfig `yaml:"database"`
	InfluxDB      InfluxDBConfig `yaml:"influxdb"`
	HTTP          HTTPConfig     `yaml:"http"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this device towards the broker.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrokerConfig contains the MQTT broker address.
type BrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TLSConfig contains the client TLS material paths.
// Empty fields fall back to the conventional certificates/ layout.
type TLSConfig struct {
	CertDir  string `yaml:"cert_dir"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AnnounceConfig controls the retained online announcement published on connect.
// An empty Topic means devices/{device.id}/status.
type AnnounceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// DatabaseConfig contains SQLite database settings for the link journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HTTPConfig contains the observability HTTP server settings.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
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
// Environment variables follow the pattern: DEVICELINK_SECTION_KEY
// For example: DEVICELINK_BROKER_HOST, DEVICELINK_DEVICE_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host: "localhost",
			Port: 8883,
		},
		TLS: TLSConfig{
			CertDir:  "certificates",
			CAFile:   "certificates/ca.crt",
			CertFile: "certificates/client01.crt",
			KeyFile:  "certificates/client01.key",
		},
		Database: DatabaseConfig{
			Path:        "./data/devicelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DEVICELINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device identity and credentials
	if v := os.Getenv("DEVICELINK_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("DEVICELINK_DEVICE_USERNAME"); v != "" {
		cfg.Device.Username = v
	}
	if v := os.Getenv("DEVICELINK_DEVICE_PASSWORD"); v != "" {
		cfg.Device.Password = v
	}

	// Broker
	if v := os.Getenv("DEVICELINK_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("DEVICELINK_BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEVICELINK_BROKER_PORT: %w", err)
		}
		cfg.Broker.Port = port
	}

	// TLS
	if v := os.Getenv("DEVICELINK_TLS_CERT_DIR"); v != "" {
		cfg.TLS.CertDir = v
	}
	if v := os.Getenv("DEVICELINK_TLS_CA_FILE"); v != "" {
		cfg.TLS.CAFile = v
	}
	if v := os.Getenv("DEVICELINK_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("DEVICELINK_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}

	// Database
	if v := os.Getenv("DEVICELINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("DEVICELINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("DEVICELINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}

	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		errs = append(errs, "tls.cert_file and tls.key_file are required")
	}

	for i, topic := range c.Subscriptions {
		if topic == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d] cannot be empty", i))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
	}

	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		errs = append(errs, "http.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerPort returns the broker port in the width the MQTT client expects.
// Validate guarantees the value fits.
func (c *Config) BrokerPort() uint16 {
	return uint16(c.Broker.Port) // #nosec G115 -- range checked in Validate
}
