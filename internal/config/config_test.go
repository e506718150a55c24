package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != "supabase" {
		t.Errorf("Backend = %q, want supabase", cfg.Backend)
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("OutputFormat = %q, want text", cfg.OutputFormat)
	}

	// The created file should be the documented sample
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading created config: %v", err)
	}
	if string(data) != GetSampleConfig() {
		t.Error("created config should match the embedded sample")
	}
}

func TestLoadExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `backend: memory
store:
  url: https://db.example.com
  anon_key: key-123
cache:
  ttl: 10m
output_format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.Store.URL != "https://db.example.com" {
		t.Errorf("Store.URL = %q", cfg.Store.URL)
	}
	if cfg.Store.AnonKey != "key-123" {
		t.Errorf("Store.AnonKey = %q", cfg.Store.AnonKey)
	}
	if cfg.GetCacheTTLDuration() != 10*time.Minute {
		t.Errorf("cache TTL = %v, want 10m", cfg.GetCacheTTLDuration())
	}
	if cfg.OutputFormat != "json" {
		t.Errorf("OutputFormat = %q, want json", cfg.OutputFormat)
	}
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("no_prompt: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != "supabase" {
		t.Errorf("Backend default = %q, want supabase", cfg.Backend)
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("OutputFormat default = %q, want text", cfg.OutputFormat)
	}
	if cfg.Cache.Path == "" {
		t.Error("Cache.Path should default to the data dir")
	}
	if !cfg.NoPrompt {
		t.Error("NoPrompt should be preserved from file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("backend: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with invalid YAML should fail")
	}
}

func TestEnvOverridesStoreSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `store:
  url: https://from-file.example.com
  anon_key: file-key
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvStoreURL, "https://from-env.example.com")
	t.Setenv(EnvStoreAnonKey, "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.URL != "https://from-env.example.com" {
		t.Errorf("Store.URL = %q, want env override", cfg.Store.URL)
	}
	if cfg.Store.AnonKey != "env-key" {
		t.Errorf("Store.AnonKey = %q, want env override", cfg.Store.AnonKey)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()

	// Missing file returns nil config, nil error
	cfg, err := LoadFromPath(filepath.Join(dir, "missing.yaml"))
	if err != nil || cfg != nil {
		t.Errorf("LoadFromPath(missing) = %v, %v, want nil, nil", cfg, err)
	}

	// Empty path is an error
	if _, err := LoadFromPath(""); err == nil {
		t.Error("LoadFromPath(\"\") should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"memory backend", func(c *Config) { c.Backend = "memory" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "carrier-pigeon" }, true},
		{"json output", func(c *Config) { c.OutputFormat = "json" }, false},
		{"bad output format", func(c *Config) { c.OutputFormat = "xml" }, true},
		{"valid store url", func(c *Config) { c.Store.URL = "https://db.example.com" }, false},
		// A malformed store.url must not fail validation: the store client
		// falls back to its placeholder endpoint instead of aborting startup.
		{"store url bad scheme tolerated", func(c *Config) { c.Store.URL = "ftp://db.example.com" }, false},
		{"store url no host tolerated", func(c *Config) { c.Store.URL = "https://" }, false},
		{"valid cache ttl", func(c *Config) { c.Cache.TTL = "30s" }, false},
		{"bad cache ttl", func(c *Config) { c.Cache.TTL = "five minutes" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyFlags(true, "json")
	if !cfg.NoPrompt || cfg.OutputFormat != "json" {
		t.Errorf("ApplyFlags() = %+v", cfg)
	}

	// Empty flag values leave config untouched
	cfg2 := DefaultConfig()
	cfg2.ApplyFlags(false, "")
	if cfg2.NoPrompt || cfg2.OutputFormat != "text" {
		t.Errorf("ApplyFlags() with zero values mutated config: %+v", cfg2)
	}
}

func TestIsCacheEnabledDefault(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsCacheEnabled() {
		t.Error("cache should be enabled by default")
	}

	disabled := false
	cfg.Cache.Enabled = &disabled
	if cfg.IsCacheEnabled() {
		t.Error("cache should respect explicit disable")
	}
}

func TestIsBackgroundLoggingEnabledDefault(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsBackgroundLoggingEnabled() {
		t.Error("background logging should be enabled by default")
	}

	disabled := false
	cfg.Logging.BackgroundEnabled = &disabled
	if cfg.IsBackgroundLoggingEnabled() {
		t.Error("background logging should respect explicit disable")
	}
}

func TestGetXDGDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := GetConfigDir(); got != filepath.Join("/custom/config", "taskdeck") {
		t.Errorf("GetConfigDir() = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := GetDataDir(); got != filepath.Join("/custom/data", "taskdeck") {
		t.Errorf("GetDataDir() = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	if got := ExpandPath("~/tasks.db"); got != filepath.Join(home, "tasks.db") {
		t.Errorf("ExpandPath(~/tasks.db) = %q", got)
	}

	t.Setenv("TASKDECK_TEST_DIR", "/data")
	if got := ExpandPath("$TASKDECK_TEST_DIR/tasks.db"); got != "/data/tasks.db" {
		t.Errorf("ExpandPath with env = %q", got)
	}

	if got := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %q", got)
	}
}

func TestSampleConfigIsValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(GetSampleConfig()), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sample config failed validation: %v", err)
	}
}
