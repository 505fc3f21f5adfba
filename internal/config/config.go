// Package config loads walkpad settings from a YAML file, then the
// environment. Command line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-acme/lego/platform/config/env"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Pad
	Adapter    string `yaml:"adapter"`
	Address    string `yaml:"address"`
	DeviceName string `yaml:"device_name"`
	// BridgeURL reaches the pad through a WebSocket bridge instead of
	// the local adapter
	BridgeURL string `yaml:"bridge_url"`

	// Session
	PacingMs       int `yaml:"pacing_ms"`
	ConnectRetries int `yaml:"connect_retries"`
	RetryDelayMs   int `yaml:"retry_delay_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// History
	HistoryTimeoutMs int `yaml:"history_timeout_ms"`
	HistoryRetries   int `yaml:"history_retries"`

	// Sinks, empty disables
	StatsFile   string `yaml:"stats_file"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	RedisURL    string `yaml:"redis_url"`
	RedisKey    string `yaml:"redis_key"`

	HTTPAddr string        `yaml:"http_addr"`
	HomeKit  HomeKitConfig `yaml:"homekit"`
	LogLevel string        `yaml:"log_level"`
}

type HomeKitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pin         string `yaml:"pin"`
	StoragePath string `yaml:"storage_path"`
}

// Default is what runs with no file and no environment
func Default() Config {
	return Config{
		Adapter:          "hci0",
		DeviceName:       "WalkingPad",
		PacingMs:         250,
		ConnectRetries:   3,
		RetryDelayMs:     1000,
		PollIntervalMs:   1000,
		HistoryTimeoutMs: 2000,
		HistoryRetries:   3,
		StatsFile:        "stats.json",
		NATSSubject:      "walkpad.runs",
		RedisKey:         "walkpad:runs",
		HomeKit: HomeKitConfig{
			Pin:         "80000000",
			StoragePath: "./var/local/homekitdb",
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults, then applies the environment. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		log.Debugf("Loaded config from %s", path)
	}
	ApplyEnv(&cfg)
	return &cfg, nil
}

// ApplyEnv overrides cfg with any WALKPAD_* variables that are set.
// LOGLEVEL is honoured for the log level.
func ApplyEnv(cfg *Config) {
	cfg.Adapter = env.GetOrDefaultString("WALKPAD_ADAPTER", cfg.Adapter)
	cfg.Address = env.GetOrDefaultString("WALKPAD_ADDR", cfg.Address)
	cfg.DeviceName = env.GetOrDefaultString("WALKPAD_DEVICE_NAME", cfg.DeviceName)
	cfg.BridgeURL = env.GetOrDefaultString("WALKPAD_BRIDGE_URL", cfg.BridgeURL)

	cfg.PacingMs = env.GetOrDefaultInt("WALKPAD_PACING_MS", cfg.PacingMs)
	cfg.ConnectRetries = env.GetOrDefaultInt("WALKPAD_CONNECT_RETRIES", cfg.ConnectRetries)
	cfg.RetryDelayMs = env.GetOrDefaultInt("WALKPAD_RETRY_DELAY_MS", cfg.RetryDelayMs)
	cfg.PollIntervalMs = env.GetOrDefaultInt("WALKPAD_POLL_INTERVAL_MS", cfg.PollIntervalMs)
	cfg.HistoryTimeoutMs = env.GetOrDefaultInt("WALKPAD_HISTORY_TIMEOUT_MS", cfg.HistoryTimeoutMs)
	cfg.HistoryRetries = env.GetOrDefaultInt("WALKPAD_HISTORY_RETRIES", cfg.HistoryRetries)

	cfg.StatsFile = env.GetOrDefaultString("WALKPAD_STATS_FILE", cfg.StatsFile)
	cfg.NATSURL = env.GetOrDefaultString("WALKPAD_NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = env.GetOrDefaultString("WALKPAD_NATS_SUBJECT", cfg.NATSSubject)
	cfg.RedisURL = env.GetOrDefaultString("WALKPAD_REDIS_URL", cfg.RedisURL)
	cfg.RedisKey = env.GetOrDefaultString("WALKPAD_REDIS_KEY", cfg.RedisKey)

	cfg.HTTPAddr = env.GetOrDefaultString("WALKPAD_HTTP_ADDR", cfg.HTTPAddr)
	cfg.HomeKit.Enabled = env.GetOrDefaultBool("WALKPAD_HOMEKIT", cfg.HomeKit.Enabled)
	cfg.HomeKit.Pin = env.GetOrDefaultString("WALKPAD_HOMEKIT_PIN", cfg.HomeKit.Pin)
	cfg.HomeKit.StoragePath = env.GetOrDefaultString("STORAGE_PATH", cfg.HomeKit.StoragePath)
	cfg.LogLevel = env.GetOrDefaultString("LOGLEVEL", cfg.LogLevel)
}

const minPacing = 100 * time.Millisecond

// Validate checks cfg without changing it
func Validate(cfg *Config) error {
	var errs []error
	positive := []struct {
		key string
		v   int
	}{
		{"pacing_ms", cfg.PacingMs},
		{"retry_delay_ms", cfg.RetryDelayMs},
		{"poll_interval_ms", cfg.PollIntervalMs},
		{"history_timeout_ms", cfg.HistoryTimeoutMs},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.key, p.v))
		}
	}
	if cfg.PacingMs > 0 && cfg.Pacing() < minPacing {
		errs = append(errs, fmt.Errorf("pacing_ms %d is below %v, the pad drops commands", cfg.PacingMs, minPacing))
	}
	if cfg.ConnectRetries < 0 {
		errs = append(errs, fmt.Errorf("connect_retries must not be negative, got %d", cfg.ConnectRetries))
	}
	if cfg.HistoryRetries < 0 {
		errs = append(errs, fmt.Errorf("history_retries must not be negative, got %d", cfg.HistoryRetries))
	}
	if cfg.NATSURL != "" && cfg.NATSSubject == "" {
		errs = append(errs, errors.New("nats_subject is required with nats_url"))
	}
	if cfg.RedisURL != "" && cfg.RedisKey == "" {
		errs = append(errs, errors.New("redis_key is required with redis_url"))
	}
	if cfg.HomeKit.Enabled {
		if err := ValidatePin(cfg.HomeKit.Pin); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidatePin accepts 8 digit HomeKit setup codes that are not trivially
// guessable
func ValidatePin(pin string) error {
	if len(pin) != 8 {
		return fmt.Errorf("homekit pin %q must be 8 digits", pin)
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return fmt.Errorf("homekit pin %q must be 8 digits", pin)
		}
	}
	switch pin {
	case "12345678", "87654321":
		return fmt.Errorf("homekit pin %q is not allowed", pin)
	}
	same := true
	for i := 1; i < len(pin); i++ {
		same = same && pin[i] == pin[0]
	}
	if same {
		return fmt.Errorf("homekit pin %q is not allowed", pin)
	}
	return nil
}

func (c *Config) Pacing() time.Duration       { return ms(c.PacingMs) }
func (c *Config) RetryDelay() time.Duration   { return ms(c.RetryDelayMs) }
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMs) }
func (c *Config) HistoryTimeout() time.Duration {
	return ms(c.HistoryTimeoutMs)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
