package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. Values come from a
// YAML file with DAYBREAK_* environment overrides on top.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Sweep struct {
		ExpiryInterval time.Duration `yaml:"expiry_interval"`
		RetryInterval  time.Duration `yaml:"retry_interval"`
		NotifyInterval time.Duration `yaml:"notify_interval"`
	} `yaml:"sweep"`

	Settlement struct {
		MaxRetries  int           `yaml:"max_retries"`
		BackoffBase time.Duration `yaml:"backoff_base"`
		BackoffCap  time.Duration `yaml:"backoff_cap"`
		Currency    string        `yaml:"currency"`
		Provider    string        `yaml:"provider"` // "stub" until a real processor is wired
	} `yaml:"settlement"`

	Geofence struct {
		DefaultRadiusMeters float64 `yaml:"default_radius_meters"`
	} `yaml:"geofence"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{
		ListenAddr: ":8080",
		DataDir:    "./data",
	}
	cfg.Log.Level = "info"
	cfg.Sweep.ExpiryInterval = time.Minute
	cfg.Sweep.RetryInterval = time.Minute
	cfg.Sweep.NotifyInterval = 30 * time.Second
	cfg.Settlement.MaxRetries = 3
	cfg.Settlement.BackoffBase = 15 * time.Minute
	cfg.Settlement.BackoffCap = 24 * time.Hour
	cfg.Settlement.Currency = "usd"
	cfg.Settlement.Provider = "stub"
	cfg.Geofence.DefaultRadiusMeters = 100
	return cfg
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DAYBREAK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DAYBREAK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DAYBREAK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DAYBREAK_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true" || v == "1"
	}
	if v := os.Getenv("DAYBREAK_EXPIRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sweep.ExpiryInterval = d
		}
	}
	if v := os.Getenv("DAYBREAK_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sweep.RetryInterval = d
		}
	}
	if v := os.Getenv("DAYBREAK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settlement.MaxRetries = n
		}
	}
	if v := os.Getenv("DAYBREAK_CURRENCY"); v != "" {
		cfg.Settlement.Currency = v
	}
	if v := os.Getenv("DAYBREAK_PROVIDER"); v != "" {
		cfg.Settlement.Provider = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Sweep.ExpiryInterval <= 0 || c.Sweep.RetryInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	if c.Settlement.MaxRetries < 0 {
		return fmt.Errorf("settlement.max_retries must be non-negative")
	}
	if c.Settlement.BackoffBase <= 0 || c.Settlement.BackoffCap < c.Settlement.BackoffBase {
		return fmt.Errorf("settlement backoff must be positive and capped above the base")
	}
	if c.Geofence.DefaultRadiusMeters <= 0 {
		return fmt.Errorf("geofence.default_radius_meters must be positive")
	}
	return nil
}
