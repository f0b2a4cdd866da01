package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ResolveConfig controls the bounded retry used when looking up services and characteristics
type ResolveConfig struct {
	Attempts int           `yaml:"attempts" default:"3"`
	Backoff  time.Duration `yaml:"backoff" default:"100ms"`
}

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"3s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ListenerBuffer int           `yaml:"listener_buffer" default:"64"`
	Resolve        ResolveConfig `yaml:"resolve"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the client cannot operate with
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative: %s", c.ScanTimeout)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative: %s", c.ConnectTimeout)
	}
	if c.ListenerBuffer <= 0 {
		return fmt.Errorf("listener_buffer must be positive: %d", c.ListenerBuffer)
	}
	if c.Resolve.Attempts <= 0 {
		return fmt.Errorf("resolve.attempts must be positive: %d", c.Resolve.Attempts)
	}
	if c.Resolve.Backoff < 0 {
		return fmt.Errorf("resolve.backoff must not be negative: %s", c.Resolve.Backoff)
	}
	return nil
}

// NewLogger creates a configured logger instance.
// An unparsable LogLevel falls back to info.
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
