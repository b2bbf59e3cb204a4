package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendConfig points at the REST API of the telemetry backend.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	RequestTimeout string `yaml:"request_timeout"`
}

// StreamConfig holds the settings for the persistent event stream.
type StreamConfig struct {
	URL               string `yaml:"url"`
	SubjectPrefix     string `yaml:"subject_prefix"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
	ReconnectAttempts uint   `yaml:"reconnect_attempts"`
}

// WindowConfig sizes the in-memory sliding windows over traffic samples.
type WindowConfig struct {
	MaxPoints      int     `yaml:"max_points"`
	NoiseThreshold float64 `yaml:"noise_threshold"`
}

// AlertConfig controls alert coalescing and auto-clear.
type AlertConfig struct {
	CheckInterval string `yaml:"check_interval"`
	Expiry        string `yaml:"expiry"`
}

// HealthConfig holds the two load-tier thresholds, in bytes per second.
type HealthConfig struct {
	HighLoad float64 `yaml:"high_load"`
	Overload float64 `yaml:"overload"`
}

// SessionConfig locates the durable token file.
type SessionConfig struct {
	TokenFile string `yaml:"token_file"`
}

// APIConfig configures the read-only state API server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggerConfig controls the level of the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Stream  StreamConfig  `yaml:"stream"`
	Window  WindowConfig  `yaml:"window"`
	Alert   AlertConfig   `yaml:"alert"`
	Health  HealthConfig  `yaml:"health"`
	Session SessionConfig `yaml:"session"`
	API     APIConfig     `yaml:"api"`
	Logger  LoggerConfig  `yaml:"logger"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct with defaults applied for omitted fields.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.RequestTimeout == "" {
		c.Backend.RequestTimeout = "10s"
	}
	if c.Stream.SubjectPrefix == "" {
		c.Stream.SubjectPrefix = "netpulse.events"
	}
	if c.Stream.ReconnectDelay == "" {
		c.Stream.ReconnectDelay = "1s"
	}
	if c.Stream.ReconnectAttempts == 0 {
		c.Stream.ReconnectAttempts = 5
	}
	if c.Window.MaxPoints == 0 {
		c.Window.MaxPoints = 60
	}
	if c.Window.NoiseThreshold == 0 {
		c.Window.NoiseThreshold = 100
	}
	if c.Alert.CheckInterval == "" {
		c.Alert.CheckInterval = "5s"
	}
	if c.Alert.Expiry == "" {
		c.Alert.Expiry = "30s"
	}
	if c.Health.HighLoad == 0 {
		c.Health.HighLoad = 5 * 1024 * 1024
	}
	if c.Health.Overload == 0 {
		c.Health.Overload = 10 * 1024 * 1024
	}
	if c.Session.TokenFile == "" {
		c.Session.TokenFile = "netpulse_session.yaml"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8090"
	}
}
