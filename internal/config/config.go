// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Run() RunConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserUserAgent(string)
	SetBrowserRandomUserAgent(bool)

	// Run Setters
	SetRunConcurrency(int)
	SetRunSnapshotDir(string)
	SetRunReportPath(string)
	SetRunFailFast(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	RunCfg     RunConfig     `mapstructure:"run" yaml:"run"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Run() RunConfig         { return c.RunCfg }

// --- Interface Method Implementations (Setters) ---

// Browser Setters
func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserUserAgent(ua string)    { c.BrowserCfg.UserAgent = ua }
func (c *Config) SetBrowserRandomUserAgent(b bool) { c.BrowserCfg.RandomUserAgent = b }

// Run Setters
func (c *Config) SetRunConcurrency(n int)      { c.RunCfg.Concurrency = n }
func (c *Config) SetRunSnapshotDir(dir string) { c.RunCfg.SnapshotDir = dir }
func (c *Config) SetRunReportPath(p string)    { c.RunCfg.ReportPath = p }
func (c *Config) SetRunFailFast(b bool)        { c.RunCfg.FailFast = b }

// LoggerConfig controls the console and file log sinks.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal color names.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig describes how Chrome is launched and how pages are loaded.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	RandomUserAgent   bool          `mapstructure:"random_user_agent" yaml:"random_user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RunConfig holds settings for a single CLI invocation over one or more URLs.
type RunConfig struct {
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	ReportPath  string `mapstructure:"report_path" yaml:"report_path"`
	FailFast    bool   `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// NewDefaultConfig returns a configuration populated only from SetDefaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scroll-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{"disable-dev-shm-usage"})
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.random_user_agent", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.shutdown_timeout", "10s")

	// -- Run --
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("run.snapshot_dir", "")
	v.SetDefault("run.report_path", "")
	v.SetDefault("run.fail_fast", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Allow a browser binary to be picked without a config file. Explicit
	// names replace the automatic one, so it is listed first.
	if err := v.BindEnv("browser.exec_path", "SCROLL_BROWSER_EXEC_PATH", "SCROLL_CHROME_PATH", "CHROME_PATH"); err != nil {
		return nil, fmt.Errorf("error binding browser.exec_path env: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.RunCfg.Validate(); err != nil {
		return fmt.Errorf("run configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if b.PostLoadWait < 0 {
		return fmt.Errorf("post_load_wait must not be negative")
	}
	if b.UserAgent != "" && b.RandomUserAgent {
		return fmt.Errorf("user_agent and random_user_agent are mutually exclusive")
	}
	return nil
}

// Validate checks the run settings.
func (r *RunConfig) Validate() error {
	if r.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be a positive integer")
	}
	return nil
}
