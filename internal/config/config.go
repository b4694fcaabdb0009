package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its config file.
const DefaultPath = ".modscout/config.yaml"

// Config holds all modscout configuration.
type Config struct {
	Readiness ReadinessConfig `yaml:"readiness"`
	Bundler   BundlerConfig   `yaml:"bundler"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Browser   BrowserConfig   `yaml:"browser"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ReadinessConfig configures the readiness gate.
type ReadinessConfig struct {
	Timeout        string   `yaml:"timeout"`
	PollInterval   string   `yaml:"poll_interval"`
	AcceptedStates []string `yaml:"accepted_states"`
	UIRootSelector string   `yaml:"ui_root_selector"`
	// ConnStateExpr is a JS expression yielding the host's connection state, or empty.
	ConnStateExpr string `yaml:"conn_state_expr"`
}

// BundlerConfig names the page globals the bundler exposes.
type BundlerConfig struct {
	RequireGlobal string `yaml:"require_global"`
	ChunkGlobal   string `yaml:"chunk_global"`
}

// BootstrapConfig configures the two-phase bootstrap.
type BootstrapConfig struct {
	Parallelism int    `yaml:"parallelism"`
	SettleDelay string `yaml:"settle_delay"`
	WarnBudget  int    `yaml:"warn_budget"`
}

// BrowserConfig configures the CDP host.
type BrowserConfig struct {
	DebuggerURL       string `yaml:"debugger_url"` // attach to a running Chrome when set
	Headless          bool   `yaml:"headless"`
	NavigationTimeout string `yaml:"navigation_timeout"`
	EvalTimeout       string `yaml:"eval_timeout"`
}

// MonitorConfig configures strategy report persistence.
type MonitorConfig struct {
	ReportPath string `yaml:"report_path"`
	HistoryDB  string `yaml:"history_db"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Readiness: ReadinessConfig{
			Timeout:        "30s",
			PollInterval:   "250ms",
			AcceptedStates: []string{"CONNECTED", "OPENING", "PAIRING", "SYNCING", "NORMAL"},
			UIRootSelector: "#app",
		},
		Bundler: BundlerConfig{
			RequireGlobal: "__webpack_require__",
			ChunkGlobal:   "webpackChunkbuild",
		},
		Bootstrap: BootstrapConfig{
			Parallelism: 1,
			SettleDelay: "0s",
			WarnBudget:  50,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: "60s",
			EvalTimeout:       "10s",
		},
		Monitor: MonitorConfig{
			ReportPath: ".modscout/report.json",
			HistoryDB:  ".modscout/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
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
	if url := os.Getenv("MODSCOUT_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if lvl := os.Getenv("MODSCOUT_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if path := os.Getenv("MODSCOUT_HISTORY_DB"); path != "" {
		c.Monitor.HistoryDB = path
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetReadyTimeout returns the readiness timeout as a duration.
func (c *Config) GetReadyTimeout() time.Duration {
	return parseDuration(c.Readiness.Timeout, 30*time.Second)
}

// GetPollInterval returns the readiness poll interval as a duration.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Readiness.PollInterval, 250*time.Millisecond)
}

// GetSettleDelay returns the settle delay as a duration.
func (c *Config) GetSettleDelay() time.Duration {
	return parseDuration(c.Bootstrap.SettleDelay, 0)
}

// GetNavigationTimeout returns the browser navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 60*time.Second)
}

// GetEvalTimeout returns the per-evaluation timeout for the CDP host.
func (c *Config) GetEvalTimeout() time.Duration {
	return parseDuration(c.Browser.EvalTimeout, 10*time.Second)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name, s := range map[string]string{
		"readiness.timeout":          c.Readiness.Timeout,
		"readiness.poll_interval":    c.Readiness.PollInterval,
		"bootstrap.settle_delay":     c.Bootstrap.SettleDelay,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.eval_timeout":       c.Browser.EvalTimeout,
	} {
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, s, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: negative", name, s)
		}
	}

	if c.GetPollInterval() > c.GetReadyTimeout() {
		return fmt.Errorf("readiness.poll_interval (%s) exceeds readiness.timeout (%s)", c.Readiness.PollInterval, c.Readiness.Timeout)
	}
	if c.Bootstrap.Parallelism < 0 {
		return fmt.Errorf("invalid bootstrap.parallelism: %d", c.Bootstrap.Parallelism)
	}
	if c.Bundler.RequireGlobal == "" && c.Bundler.ChunkGlobal == "" {
		return fmt.Errorf("bundler: at least one of require_global and chunk_global must be set")
	}

	valid := false
	for _, l := range ValidLogLevels {
		if strings.EqualFold(c.Logging.Level, l) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	switch c.Logging.Format {
	case "", "json", "console", "text":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}
