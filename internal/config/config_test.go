package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Bootstrap.Parallelism != 1 {
		t.Errorf("expected Parallelism=1, got %d", cfg.Bootstrap.Parallelism)
	}
	if cfg.Readiness.Timeout != "30s" {
		t.Errorf("expected Timeout=30s, got %s", cfg.Readiness.Timeout)
	}
	if len(cfg.Readiness.AcceptedStates) != 5 {
		t.Errorf("expected 5 accepted states, got %v", cfg.Readiness.AcceptedStates)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("MODSCOUT_LOG_LEVEL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level, got %s", cfg.Logging.Level)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "readiness:\n  timeout: 5s\nbootstrap:\n  parallelism: 4\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.GetReadyTimeout(); got != 5*time.Second {
		t.Errorf("expected 5s, got %s", got)
	}
	if cfg.Bootstrap.Parallelism != 4 {
		t.Errorf("expected Parallelism=4, got %d", cfg.Bootstrap.Parallelism)
	}
	if cfg.GetPollInterval() != 250*time.Millisecond {
		t.Errorf("poll interval default lost: %s", cfg.GetPollInterval())
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("readiness: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("MODSCOUT_DEBUGGER_URL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Browser.DebuggerURL = "ws://127.0.0.1:9222/devtools/browser/x"
	cfg.Logging.Categories = map[string]bool{"cache": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Browser.DebuggerURL != cfg.Browser.DebuggerURL {
		t.Errorf("expected DebuggerURL=%s, got %s", cfg.Browser.DebuggerURL, loaded.Browser.DebuggerURL)
	}
	if loaded.Logging.IsCategoryEnabled("cache") {
		t.Error("cache category should be disabled")
	}
	if !loaded.Logging.IsCategoryEnabled("boot") {
		t.Error("unlisted category should be enabled")
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	cfg.Readiness.Timeout = "soon"
	if cfg.GetReadyTimeout() != 30*time.Second {
		t.Errorf("expected fallback 30s, got %s", cfg.GetReadyTimeout())
	}
	if cfg.GetSettleDelay() != 0 {
		t.Errorf("expected zero settle delay, got %s", cfg.GetSettleDelay())
	}
	if cfg.GetEvalTimeout() != 10*time.Second {
		t.Errorf("expected fallback 10s, got %s", cfg.GetEvalTimeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad duration", func(c *Config) { c.Readiness.Timeout = "ten" }},
		{"negative duration", func(c *Config) { c.Bootstrap.SettleDelay = "-1s" }},
		{"poll exceeds timeout", func(c *Config) { c.Readiness.PollInterval = "1m" }},
		{"negative parallelism", func(c *Config) { c.Bootstrap.Parallelism = -2 }},
		{"no bundler globals", func(c *Config) { c.Bundler = BundlerConfig{} }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
