// Package config loads the application configuration from a YAML file,
// filling in defaults for anything the file leaves out.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the zerolog bootstrap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig controls the supervisory sync-all job.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron is a cron-style schedule string (e.g. "*/15 * * * *").
	Cron string `yaml:"cron"`
}

// SyncConfig holds operational knobs for individual runs.
type SyncConfig struct {
	// FetchTimeoutSeconds bounds the feed download. The feed source gives no
	// timeout guarantee of its own, so the engine imposes one.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen"`

	// DatabasePath is the SQLite database file backing both stores.
	DatabasePath string `yaml:"database"`

	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sync      SyncConfig      `yaml:"sync"`
}

// Default returns the in-memory default configuration.
func Default() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		DatabasePath: "clubsync.db",
		Log:          LogConfig{Level: "info", Format: "console"},
		Scheduler:    SchedulerConfig{Enabled: true, Cron: "*/15 * * * *"},
		Sync:         SyncConfig{FetchTimeoutSeconds: 30},
	}
}

// Normalize fills missing or zero values with defaults so partially filled
// configs still behave correctly.
func (c *Config) Normalize() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = def.Scheduler.Cron
	}
	if c.Sync.FetchTimeoutSeconds <= 0 {
		c.Sync.FetchTimeoutSeconds = def.Sync.FetchTimeoutSeconds
	}
}

// FetchTimeout returns the configured feed-fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Sync.FetchTimeoutSeconds) * time.Second
}

// Load reads configuration from path. If the file does not exist, a default
// config file is written there (0600) and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path with 0600 permissions, creating the parent
// directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
