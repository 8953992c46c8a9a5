// Package config loads and saves workspace configuration from
// .aether/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all aether configuration.
type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	Storage StorageConfig `yaml:"storage"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// ScannerConfig configures workspace scanning.
type ScannerConfig struct {
	// MaxConcurrency bounds the seed scan worker pool. 0 means NumCPU.
	MaxConcurrency int `yaml:"max_concurrency"`

	// IgnorePatterns extends the built-in ignore list. Entries may be
	// plain names, path prefixes or glob patterns.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// MaxFileBytes skips files larger than this. 0 disables the cap.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// DatabasePath overrides the default <workspace>/.aether/meta.sqlite.
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	DebounceMs     int `yaml:"debounce_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Scanner: ScannerConfig{
			MaxConcurrency: 0,
			MaxFileBytes:   2 * 1024 * 1024,
		},
		Watch: WatchConfig{
			DebounceMs:     250,
			PollIntervalMs: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".aether", "config.yaml")
}

// Load reads the workspace config, returning defaults when the file does
// not exist.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path(workspace))
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

// Save writes the config to its workspace location.
func (c *Config) Save(workspace string) error {
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if value := os.Getenv("AETHER_MAX_CONCURRENCY"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			c.Scanner.MaxConcurrency = parsed
		}
	}
	if value := os.Getenv("AETHER_MAX_FILE_BYTES"); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed >= 0 {
			c.Scanner.MaxFileBytes = parsed
		}
	}
	if path := os.Getenv("AETHER_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
}

// DebounceWindow returns the watch debounce as a duration.
func (c *Config) DebounceWindow() time.Duration {
	if c.Watch.DebounceMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// PollInterval returns the watch drain tick as a duration.
func (c *Config) PollInterval() time.Duration {
	if c.Watch.PollIntervalMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.Watch.PollIntervalMs) * time.Millisecond
}
