package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Server.RateLimitPerIP != 60 || cfg.Server.RateLimitPerActor != 240 {
		t.Errorf("rate limits = %d/%d, want 60/240", cfg.Server.RateLimitPerIP, cfg.Server.RateLimitPerActor)
	}
	if cfg.Database.Path != "data/opswatch.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Notifier.CooldownMinutes != 30 {
		t.Errorf("cooldown = %d, want 30", cfg.Notifier.CooldownMinutes)
	}
	if cfg.Evaluation.WindowMinutes != 15 || cfg.Evaluation.IntervalSeconds != 60 {
		t.Errorf("evaluation = %d/%d, want 15/60", cfg.Evaluation.WindowMinutes, cfg.Evaluation.IntervalSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	content := `
server:
  address: ":9090"
  rate_limit_per_ip: 10
database:
  path: /tmp/test-opswatch.db
notifier:
  webhook_url: https://hooks.example.com/ops
  ack_base_url: https://opswatch.example.com
  cooldown_minutes: 15
evaluation:
  window_minutes: 30
  critical_routes:
    - /api/checkout
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %q, want :9090", cfg.Server.Address)
	}
	if cfg.Server.RateLimitPerIP != 10 {
		t.Errorf("rate_limit_per_ip = %d, want 10", cfg.Server.RateLimitPerIP)
	}
	// Unset fields still pick up defaults.
	if cfg.Server.RateLimitPerActor != 240 {
		t.Errorf("rate_limit_per_actor = %d, want default 240", cfg.Server.RateLimitPerActor)
	}
	if cfg.Notifier.CooldownMinutes != 15 {
		t.Errorf("cooldown_minutes = %d, want 15", cfg.Notifier.CooldownMinutes)
	}
	if cfg.Evaluation.WindowMinutes != 30 {
		t.Errorf("window_minutes = %d, want 30", cfg.Evaluation.WindowMinutes)
	}
	if cfg.Evaluation.IntervalSeconds != 60 {
		t.Errorf("interval_seconds = %d, want default 60", cfg.Evaluation.IntervalSeconds)
	}
	if len(cfg.Evaluation.CriticalRoutes) != 1 || cfg.Evaluation.CriticalRoutes[0] != "/api/checkout" {
		t.Errorf("critical_routes = %v", cfg.Evaluation.CriticalRoutes)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "webhook without ack base url",
			mutate:  func(c *Config) { c.Notifier.WebhookURL = "https://hooks.example.com/ops" },
			wantErr: true,
		},
		{
			name: "webhook with ack base url",
			mutate: func(c *Config) {
				c.Notifier.WebhookURL = "https://hooks.example.com/ops"
				c.Notifier.AckBaseURL = "https://opswatch.example.com"
			},
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.Evaluation.WindowMinutes = -1 },
			wantErr: true,
		},
		{
			name:    "interval below floor",
			mutate:  func(c *Config) { c.Evaluation.IntervalSeconds = 2 },
			wantErr: true,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Cooldown().Minutes(); got != 30 {
		t.Errorf("cooldown = %v minutes, want 30", got)
	}
	if got := cfg.EvalInterval().Seconds(); got != 60 {
		t.Errorf("interval = %v seconds, want 60", got)
	}
}
