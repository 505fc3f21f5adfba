package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walkpad.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pacing() != 250*time.Millisecond || cfg.HistoryTimeout() != 2*time.Second {
		t.Fatalf("Bad durations %v %v", cfg.Pacing(), cfg.HistoryTimeout())
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
address: "AA:BB:CC:DD:EE:FF"
pacing_ms: 500
stats_file: runs.jsonl
homekit:
  enabled: true
  pin: "31415926"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Address != "AA:BB:CC:DD:EE:FF" || cfg.PacingMs != 500 || cfg.StatsFile != "runs.jsonl" {
		t.Fatalf("File values not applied: %+v", cfg)
	}
	if !cfg.HomeKit.Enabled || cfg.HomeKit.Pin != "31415926" {
		t.Fatalf("Bad homekit %+v", cfg.HomeKit)
	}
	// untouched keys keep their defaults
	if cfg.Adapter != "hci0" || cfg.ConnectRetries != 3 || cfg.HomeKit.StoragePath == "" {
		t.Fatalf("Defaults lost: %+v", cfg)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "pacing_ms: 500\nadapter: hci1\n")
	t.Setenv("WALKPAD_PACING_MS", "300")
	t.Setenv("WALKPAD_NATS_URL", "nats://localhost:4222")
	t.Setenv("LOGLEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PacingMs != 300 || cfg.Adapter != "hci1" || cfg.NATSURL != "nats://localhost:4222" || cfg.LogLevel != "debug" {
		t.Fatalf("Env not applied: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
	if _, err := Load(writeFile(t, "pacing_ms: [1, 2]\n")); err == nil {
		t.Fatal("Expected error for bad yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ZeroPacing", func(c *Config) { c.PacingMs = 0 }, "pacing_ms must be positive"},
		{"FastPacing", func(c *Config) { c.PacingMs = 50 }, "pad drops commands"},
		{"NegativeRetries", func(c *Config) { c.ConnectRetries = -1 }, "connect_retries"},
		{"NegativeHistoryRetries", func(c *Config) { c.HistoryRetries = -2 }, "history_retries"},
		{"NegativePoll", func(c *Config) { c.PollIntervalMs = -1 }, "poll_interval_ms"},
		{"NATSWithoutSubject", func(c *Config) { c.NATSURL = "nats://x"; c.NATSSubject = "" }, "nats_subject"},
		{"RedisWithoutKey", func(c *Config) { c.RedisURL = "redis://x"; c.RedisKey = "" }, "redis_key"},
		{"ShortPin", func(c *Config) { c.HomeKit.Enabled = true; c.HomeKit.Pin = "1234" }, "8 digits"},
		{"TrivialPin", func(c *Config) { c.HomeKit.Enabled = true; c.HomeKit.Pin = "11111111" }, "not allowed"},
		{"BadLevel", func(c *Config) { c.LogLevel = "loud" }, "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	t.Run("DisabledHomeKitPinIgnored", func(t *testing.T) {
		cfg := Default()
		cfg.HomeKit.Pin = "x"
		if err := Validate(&cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
