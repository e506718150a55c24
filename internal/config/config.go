// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// StoreConfig holds remote row store settings
type StoreConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
}

// CacheConfig holds local task snapshot cache settings
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled"` // Controls the local sqlite snapshot cache (default: true)
	Path    string `yaml:"path"`
	TTL     string `yaml:"ttl"` // Snapshot freshness window (e.g., "5m", "30s")
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	BackgroundEnabled *bool `yaml:"background_enabled"` // Controls background log file creation (default: true)
}

// Config represents the application configuration
type Config struct {
	Backend      string        `yaml:"backend"` // "supabase" or "memory"
	Store        StoreConfig   `yaml:"store"`
	Cache        CacheConfig   `yaml:"cache"`
	Logging      LoggingConfig `yaml:"logging"`
	NoPrompt     bool          `yaml:"no_prompt"`
	OutputFormat string        `yaml:"output_format"`
}

// Environment variables that override the store section of the config file.
const (
	EnvStoreURL     = "TASKDECK_SUPABASE_URL"
	EnvStoreAnonKey = "TASKDECK_SUPABASE_ANON_KEY"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:      "supabase",
		OutputFormat: "text",
		Cache: CacheConfig{
			Path: filepath.Join(GetDataDir(), "tasks.db"),
		},
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one with defaults. Environment
// variables override the store section either way.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.Cache.Path != "" {
		cfg.Cache.Path = ExpandPath(cfg.Cache.Path)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path without creating defaults.
// Returns nil when the file does not exist.
func LoadFromPath(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = "supabase"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(GetDataDir(), "tasks.db")
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStoreURL); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv(EnvStoreAnonKey); v != "" {
		c.Store.AnonKey = v
	}
}

// save writes the configuration to the specified path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use the embedded sample config which includes all documentation and comments
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	if c.Backend != "supabase" && c.Backend != "memory" {
		return fmt.Errorf("unknown backend: %q (must be 'supabase' or 'memory')", c.Backend)
	}

	// store.url is not checked here. The store client validates it and
	// falls back to the placeholder endpoint with a logged config error,
	// so a bad URL must not abort startup.

	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("invalid duration for cache.ttl: %q", c.Cache.TTL)
		}
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt bool, outputFormat string) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// IsCacheEnabled returns true if the local snapshot cache is enabled.
// Returns true (default) if not configured.
func (c *Config) IsCacheEnabled() bool {
	if c.Cache.Enabled == nil {
		return true
	}
	return *c.Cache.Enabled
}

// GetCachePath returns the path to the sqlite snapshot cache
func (c *Config) GetCachePath() string {
	return c.Cache.Path
}

// GetCacheTTL returns the cache TTL setting as a string.
// Returns "5m" (default) if not configured.
func (c *Config) GetCacheTTL() string {
	if c.Cache.TTL == "" {
		return "5m"
	}
	return c.Cache.TTL
}

// GetCacheTTLDuration returns the cache TTL as a time.Duration.
// Returns 5 minutes as default if not configured or if parsing fails.
func (c *Config) GetCacheTTLDuration() time.Duration {
	duration, err := time.ParseDuration(c.GetCacheTTL())
	if err != nil {
		return 5 * time.Minute
	}
	return duration
}

// IsBackgroundLoggingEnabled returns true if background logging is enabled.
// Background logging creates PID-specific log files in /tmp.
// Returns true (default) if not configured.
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return true
	}
	return *c.Logging.BackgroundEnabled
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "taskdeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "taskdeck")
	}
	return filepath.Join(home, fallbackPath, "taskdeck")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
