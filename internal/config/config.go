package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wainbox/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	APIBaseURL string `toml:"api_base_url"`
	PushURL    string `toml:"push_url"`
	BusinessID string `toml:"business_id"`
	UserID     string `toml:"user_id"`

	// RefreshIntervalSeconds is the silent background refresh cadence
	// for the conversation list.
	RefreshIntervalSeconds int `toml:"refresh_interval_seconds"`

	// PageSize is the fetch limit for conversation and message pages.
	PageSize int `toml:"page_size"`
}

// ApplyDefaults fills unset tunables.
func (c *Config) ApplyDefaults() {
	if c.RefreshIntervalSeconds <= 0 {
		c.RefreshIntervalSeconds = 25
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
}

// Validate checks that required connection settings are present.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("config: api_base_url is required")
	}
	if c.BusinessID == "" {
		return fmt.Errorf("config: business_id is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("config: user_id is required")
	}
	return nil
}

// Load reads config from the given path. Returns zero config and error
// if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
