// Package config loads and validates the nestling service configuration.
// Configuration comes from a YAML file with environment variable overrides;
// missing file means defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all nestling configuration.
type Config struct {
	// DataDir is the root for the database, images and logs.
	DataDir string `yaml:"data_dir"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Images   ImagesConfig   `yaml:"images"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	BaseURL      string `yaml:"base_url"` // external URL prefix for image links
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	Metrics      bool   `yaml:"metrics"` // expose /metrics
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // empty = <data_dir>/nestling.db
}

// ImagesConfig configures snapshot image storage.
type ImagesConfig struct {
	Dir            string `yaml:"dir"`              // empty = <data_dir>/images
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // reject larger uploads
	MaxEdge        int    `yaml:"max_edge"`         // downscale long edge to this
	JPEGQuality    int    `yaml:"jpeg_quality"`
}

// AuthConfig configures accounts and sessions.
type AuthConfig struct {
	SessionTTL       string `yaml:"session_ttl"`
	BcryptCost       int    `yaml:"bcrypt_cost"`
	OpenRegistration bool   `yaml:"open_registration"` // allow self-service signup
}

// LoggingConfig configures the categorized debug file logger.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	DebugMode  bool            `yaml:"debug_mode"` // master toggle, false = no files written
	Categories map[string]bool `yaml:"categories"` // per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is off. With no category map, everything
// under debug_mode is enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",

		Server: ServerConfig{
			Addr:         ":8465",
			BaseURL:      "http://localhost:8465",
			ReadTimeout:  "15s",
			WriteTimeout: "30s",
			Metrics:      true,
		},

		Database: DatabaseConfig{},

		Images: ImagesConfig{
			MaxUploadBytes: 10 << 20, // 10 MiB
			MaxEdge:        1600,
			JPEGQuality:    82,
		},

		Auth: AuthConfig{
			SessionTTL:       "720h", // 30 days; households stay signed in
			BcryptCost:       10,
			OpenRegistration: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies NESTLING_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NESTLING_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("NESTLING_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NESTLING_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("NESTLING_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NESTLING_IMAGES_DIR"); v != "" {
		c.Images.Dir = v
	}
	if v := os.Getenv("NESTLING_SESSION_TTL"); v != "" {
		c.Auth.SessionTTL = v
	}
	if v := os.Getenv("NESTLING_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NESTLING_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// DatabasePath resolves the SQLite path, defaulting under the data dir.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "nestling.db")
}

// ImagesDir resolves the image storage directory, defaulting under the data dir.
func (c *Config) ImagesDir() string {
	if c.Images.Dir != "" {
		return c.Images.Dir
	}
	return filepath.Join(c.DataDir, "images")
}

// GetSessionTTL returns the session lifetime as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.SessionTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.WriteTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return fmt.Errorf("images.jpeg_quality must be in 1..100, got %d", c.Images.JPEGQuality)
	}
	if c.Images.MaxEdge < 64 {
		return fmt.Errorf("images.max_edge too small: %d", c.Images.MaxEdge)
	}
	if c.Images.MaxUploadBytes <= 0 {
		return fmt.Errorf("images.max_upload_bytes must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost out of range: %d", c.Auth.BcryptCost)
	}
	return nil
}
