// Package config loads engine configuration from a YAML file overlaid with
// environment variables, and applies the system defaults named in the data
// model (§3 of the monitoring-engine design).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// UserDefaults mirrors the per-user config block in the persisted document:
// similarity_threshold, check_interval_seconds, include_diff, custom_selector.
type UserDefaults struct {
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
	IncludeDiff          bool    `yaml:"include_diff"`
	CustomSelector       string  `yaml:"custom_selector"`
}

// Config is the full engine configuration: system defaults plus the
// operational knobs that are not part of the persisted user document.
type Config struct {
	// DBPath is the path to the single persisted JSON document.
	DBPath string `yaml:"db_path"`

	// PatrolInterval is the default patrol cycle period.
	PatrolInterval time.Duration `yaml:"patrol_interval"`

	// Defaults seeds UserDefaults for a brand-new user record.
	Defaults UserDefaults `yaml:"defaults"`

	// TelegramToken is the bot API bearer token. Required at startup.
	TelegramToken string `yaml:"-"`

	// AdminID is the chat id that receives administrative alerts, if any.
	AdminID string `yaml:"-"`

	// Port is the health endpoint listen port. Empty disables the server.
	Port string `yaml:"-"`
}

// applyDefaults fills zero-valued fields with system defaults (§3).
func applyDefaults(c *Config) {
	if c.DBPath == "" {
		c.DBPath = "veillebot.json"
	}
	if c.PatrolInterval <= 0 {
		c.PatrolInterval = 60 * time.Second
	}
	if c.Defaults.SimilarityThreshold <= 0 {
		c.Defaults.SimilarityThreshold = 0.85
	}
	if c.Defaults.CheckIntervalSeconds < 30 {
		c.Defaults.CheckIntervalSeconds = 60
	}
}

// LoadFile reads a YAML config file. A missing file is not an error; the
// caller gets system defaults overlaid with environment variables.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	overlayEnv(cfg)

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("config: TELEGRAM_TOKEN is required")
	}
	return cfg, nil
}

// overlayEnv applies the environment variables named in the external
// interfaces contract: TELEGRAM_TOKEN (required), ADMIN_ID, PORT (optional).
func overlayEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("ADMIN_ID"); v != "" {
		cfg.AdminID = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
}

// ClampThreshold clamps a similarity threshold to (0, 1], per the
// set_config boundary rule: ≤0 clamps to 0.01, >1.0 clamps to 1.0.
func ClampThreshold(v float64) float64 {
	if v <= 0 {
		return 0.01
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// ClampInterval clamps a check interval to ≥ 30 seconds.
func ClampInterval(seconds int) int {
	if seconds < 30 {
		return 30
	}
	return seconds
}
