// Package config loads the session configuration: a YAML file under the
// user config dir, overridden by environment variables, overridden by
// flags (applied by the caller).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL = "https://api.hey-watch.me"

	DefaultRetentionDays = 30
)

// Config is the file schema. Zero values fall back to defaults.
type Config struct {
	ServerURL   string `yaml:"server_url"`
	UserID      string `yaml:"user_id"`
	DeviceID    string `yaml:"device_id"`
	Timezone    string `yaml:"timezone"`
	CaptureRoot string `yaml:"capture_root"`
	InputDevice string `yaml:"input_device"`

	// RetentionDays bounds the pending scan; captures in older day
	// directories are never uploaded.
	RetentionDays int `yaml:"retention_days"`
}

// Path returns the config file location under the user config dir.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "kiku", "config.yaml"), nil
}

// Load reads path, applies env overrides and fills defaults. A missing
// file is not an error; env and defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KIKU_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("KIKU_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("KIKU_DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("KIKU_CAPTURE_ROOT"); v != "" {
		cfg.CaptureRoot = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.CaptureRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.CaptureRoot = filepath.Join(home, "kiku", "captures")
		} else {
			cfg.CaptureRoot = "captures"
		}
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
}

// Location resolves the configured timezone; empty means the host's.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save writes the config back to path, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
