// Package main provides the opswatch server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Verbose    bool             `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address           string `yaml:"address"`              // HTTP listen address (default: :8080)
	RateLimitPerIP    int    `yaml:"rate_limit_per_ip"`    // anonymous requests/min per IP
	RateLimitPerActor int    `yaml:"rate_limit_per_actor"` // requests/min per actor
}

// DatabaseConfig contains control-plane store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// ClickHouseConfig contains activity event store settings.
type ClickHouseConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	RetentionDays int      `yaml:"retention_days"`
	Compression   bool     `yaml:"compression"`
}

// NotifierConfig contains webhook sink settings. Secrets come from the
// environment, never from the config file.
type NotifierConfig struct {
	WebhookURL         string `yaml:"webhook_url"`
	AckBaseURL         string `yaml:"ack_base_url"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	CooldownMinutes    int    `yaml:"cooldown_minutes"`
	IncludeResolutions bool   `yaml:"include_resolutions"`
}

// EvaluationConfig contains alert evaluation settings.
type EvaluationConfig struct {
	WindowMinutes   int      `yaml:"window_minutes"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	ThresholdsFile  string   `yaml:"thresholds_file"` // optional override file, hot-reloaded
	CriticalRoutes  []string `yaml:"critical_routes"` // routes whose rate-limit hits always matter
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimitPerIP == 0 {
		c.Server.RateLimitPerIP = 60
	}
	if c.Server.RateLimitPerActor == 0 {
		c.Server.RateLimitPerActor = 240
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/opswatch.db"
	}
	if len(c.ClickHouse.Addresses) == 0 {
		c.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "opswatch"
	}
	if c.ClickHouse.RetentionDays == 0 {
		c.ClickHouse.RetentionDays = 30
	}
	if c.Notifier.TimeoutSeconds == 0 {
		c.Notifier.TimeoutSeconds = 4
	}
	if c.Notifier.CooldownMinutes == 0 {
		c.Notifier.CooldownMinutes = 30
	}
	if c.Evaluation.WindowMinutes == 0 {
		c.Evaluation.WindowMinutes = 15
	}
	if c.Evaluation.IntervalSeconds == 0 {
		c.Evaluation.IntervalSeconds = 60
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Notifier.WebhookURL != "" && c.Notifier.AckBaseURL == "" {
		return fmt.Errorf("notifier.ack_base_url is required when webhook_url is set")
	}
	if c.Evaluation.WindowMinutes < 1 {
		return fmt.Errorf("evaluation.window_minutes must be positive")
	}
	if c.Evaluation.IntervalSeconds < 5 {
		return fmt.Errorf("evaluation.interval_seconds must be at least 5")
	}
	return nil
}

// Cooldown returns the notification dedup window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Notifier.CooldownMinutes) * time.Minute
}

// EvalInterval returns the background evaluation interval.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.Evaluation.IntervalSeconds) * time.Second
}
