package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"covenant/internal/logging"
)

// CovenantConfig holds toolchain configuration read from covenant.json (or
// covenant.yaml — yaml.Unmarshal accepts both, since JSON is a YAML subset).
type CovenantConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Logging controls internal/logging's category loggers and audit trail.
	Logging LoggingConfig `yaml:"logging"`

	// Store configures the SQLite-backed compile cache (internal/compilerstore).
	Store StoreConfig `yaml:"store"`

	// Limits bounds a single compile invocation.
	Limits CompileLimits `yaml:"limits"`
}

// StoreConfig configures internal/compilerstore.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables the cache.
	Path string `yaml:"path" json:"path,omitempty"`

	// PruneAfter is a duration string (e.g. "168h"); entries older than it
	// are eligible for Store.Prune.
	PruneAfter string `yaml:"prune_after" json:"prune_after,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *CovenantConfig {
	return &CovenantConfig{
		Name:    "covenant",
		Version: "0.1.0",

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},

		Store: StoreConfig{
			Path:       ".covenant/cache.db",
			PruneAfter: "168h",
		},

		Limits: CompileLimits{
			MaxSourceBytes:    1 << 20,
			MaxCompileSeconds: 30,
		},
	}
}

// Load loads configuration from a YAML (or JSON) file, falling back to
// defaults if the file does not exist.
func Load(path string) (*CovenantConfig, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	logging.Boot("config loaded: store=%s", cfg.Store.Path)
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *CovenantConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
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

// GetCompileTimeout returns MaxCompileSeconds as a duration, used by
// cmd/covenant as the deadline it waits for a pipeline run (time.After).
func (c *CovenantConfig) GetCompileTimeout() time.Duration {
	if c.Limits.MaxCompileSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Limits.MaxCompileSeconds) * time.Second
}

// GetStorePruneAfter returns Store.PruneAfter as a duration, the maxAge
// argument for compilerstore.Store.Prune; an unparsable value yields 168h.
func (c *CovenantConfig) GetStorePruneAfter() time.Duration {
	d, err := time.ParseDuration(c.Store.PruneAfter)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// Validate validates the configuration.
func (c *CovenantConfig) Validate() error {
	return c.Limits.Validate()
}
