// Package config loads the YAML configuration shared by the hookwatch
// binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/hookwatch/internal/eventstore"
	"github.com/rmacdonaldsmith/hookwatch/internal/gateway"
	"github.com/rmacdonaldsmith/hookwatch/internal/monitor"
	"github.com/rmacdonaldsmith/hookwatch/pkg/httpclient"
)

// MonitorConfig configures the watch client.
type MonitorConfig struct {
	ServerURL string `yaml:"server_url"` // http://localhost:8000
	Token     string `yaml:"token"`      // only needed for stats
	Transport string `yaml:"transport"`  // sse | websocket
	Source    string `yaml:"source"`     // optional live feed filter

	HistoryLimit     int           `yaml:"history_limit"`
	FallbackDeadline time.Duration `yaml:"fallback_deadline"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	Timeout          time.Duration `yaml:"timeout"` // per request, not streams
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Config is the root of the configuration file.
type Config struct {
	Monitor MonitorConfig     `yaml:"monitor"`
	Gateway gateway.Config    `yaml:"gateway"`
	Store   eventstore.Config `yaml:"store"`
	Log     LogConfig         `yaml:"log"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads a YAML config file and expands ${VAR} environment variables.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// SetDefaults sets reasonable default values for every section
func (c *Config) SetDefaults() {
	c.Monitor.SetDefaults()
	c.Gateway.SetDefaults()
	c.Store.SetDefaults()
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

// SetDefaults fills unset monitor settings.
func (m *MonitorConfig) SetDefaults() {
	if m.ServerURL == "" {
		m.ServerURL = "http://localhost:8000"
	}
	if m.Transport == "" {
		m.Transport = httpclient.TransportSSE
	}
	if m.HistoryLimit == 0 {
		m.HistoryLimit = monitor.DefaultHistoryLimit
	}
	if m.FallbackDeadline == 0 {
		m.FallbackDeadline = monitor.DefaultFallbackDeadline
	}
	if m.PollInterval == 0 {
		m.PollInterval = monitor.DefaultPollInterval
	}
	if m.Timeout == 0 {
		m.Timeout = 30 * time.Second
	}
}

// Validate checks the monitor settings.
func (m *MonitorConfig) Validate() error {
	if m.ServerURL == "" {
		return errors.New("server_url is required")
	}
	switch m.Transport {
	case httpclient.TransportSSE, httpclient.TransportWebSocket:
	default:
		return fmt.Errorf("unknown transport %q", m.Transport)
	}
	if m.HistoryLimit < 1 || m.HistoryLimit > gateway.MaxLatestLimit {
		return fmt.Errorf("history_limit must be between 1 and %d", gateway.MaxLatestLimit)
	}
	if m.FallbackDeadline < 0 || m.PollInterval < 0 {
		return errors.New("fallback_deadline and poll_interval cannot be negative")
	}
	return nil
}

// SessionConfig returns the session settings.
func (m MonitorConfig) SessionConfig() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.History.Limit = m.HistoryLimit
	cfg.FallbackDeadline = m.FallbackDeadline
	cfg.PollInterval = m.PollInterval
	return cfg
}

// ClientConfig returns the gateway client settings.
func (m MonitorConfig) ClientConfig() httpclient.Config {
	return httpclient.Config{
		ServerURL: m.ServerURL,
		Token:     m.Token,
		Timeout:   m.Timeout,
	}
}
