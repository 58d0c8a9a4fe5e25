// Package config loads and validates gateway configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/scrape-gateway/internal/browser"
	"github.com/JakeFAU/scrape-gateway/internal/scrape"
)

// EnvironmentProduction selects the fixed browser binary.
const EnvironmentProduction = "production"

// Backend names shared by the optional sinks.
const (
	BackendNone     = ""
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig  `mapstructure:"server"`
	Environment string        `mapstructure:"environment"`
	Browser     BrowserConfig `mapstructure:"browser"`
	Google      GoogleConfig  `mapstructure:"google"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Archive     ArchiveConfig `mapstructure:"archive"`
	Notify      NotifyConfig  `mapstructure:"notify"`
	Runs        RunsConfig    `mapstructure:"runs"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     int    `mapstructure:"port"`
	RequestTimeoutSeconds    int    `mapstructure:"request_timeout_seconds"`
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	MaxBodyBytes             int64  `mapstructure:"max_body_bytes"`
}

// BrowserConfig configures the per-request Chrome process.
type BrowserConfig struct {
	Headless             bool   `mapstructure:"headless"`
	ExecPath             string `mapstructure:"exec_path"`
	ProductionExecPath   string `mapstructure:"production_exec_path"`
	ViewportWidth        int    `mapstructure:"viewport_width"`
	ViewportHeight       int    `mapstructure:"viewport_height"`
	UserAgent            string `mapstructure:"user_agent"`
	LaunchTimeoutSeconds int    `mapstructure:"launch_timeout_seconds"`
}

// GoogleConfig holds the google routine's step parameters.
type GoogleConfig struct {
	URL                      string `mapstructure:"url"`
	DefaultSearchTerm        string `mapstructure:"default_search_term"`
	ConsentSelector          string `mapstructure:"consent_selector"`
	InputSelector            string `mapstructure:"input_selector"`
	NavigationTimeoutSeconds int    `mapstructure:"navigation_timeout_seconds"`
	ConsentClickTimeoutMs    int    `mapstructure:"consent_click_timeout_ms"`
	ConsentPauseMs           int    `mapstructure:"consent_pause_ms"`
	InputTimeoutSeconds      int    `mapstructure:"input_timeout_seconds"`
	SettleDelayMs            int    `mapstructure:"settle_delay_ms"`
	TrailingDelayMs          int    `mapstructure:"trailing_delay_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ArchiveConfig selects where successful snapshots are stored.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
	// CacheControl is set on GCS snapshot objects; empty uses the store default.
	CacheControl string `mapstructure:"cache_control"`
}

// NotifyConfig holds metadata for run completion events.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RunsConfig controls the run ledger and the shared sink deadline.
type RunsConfig struct {
	Backend                string `mapstructure:"backend"`
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	SinkTimeoutSeconds     int    `mapstructure:"sink_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Platform conventions take effect when the prefixed variables are unset.
	if err := v.BindEnv("server.port", "GATEWAY_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}
	if err := v.BindEnv("environment", "GATEWAY_ENVIRONMENT", "NODE_ENV"); err != nil {
		return Config{}, fmt.Errorf("bind environment env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	google := scrape.DefaultGoogleConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout_seconds", 0)
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("environment", "development")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.production_exec_path", "/usr/bin/chromium")
	v.SetDefault("browser.viewport_width", browser.DefaultViewportWidth)
	v.SetDefault("browser.viewport_height", browser.DefaultViewportHeight)
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)
	v.SetDefault("browser.launch_timeout_seconds", int(browser.DefaultLaunchTimeout/time.Second))
	v.SetDefault("google.url", google.URL)
	v.SetDefault("google.default_search_term", google.DefaultSearchTerm)
	v.SetDefault("google.consent_selector", google.ConsentSelector)
	v.SetDefault("google.input_selector", google.InputSelector)
	v.SetDefault("google.navigation_timeout_seconds", int(google.NavigationTimeout/time.Second))
	v.SetDefault("google.consent_click_timeout_ms", google.ConsentClickTimeout.Milliseconds())
	v.SetDefault("google.consent_pause_ms", google.ConsentPause.Milliseconds())
	v.SetDefault("google.input_timeout_seconds", int(google.InputTimeout/time.Second))
	v.SetDefault("google.settle_delay_ms", google.SettleDelay.Milliseconds())
	v.SetDefault("google.trailing_delay_ms", google.TrailingDelay.Milliseconds())
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.local_dir", "data/snapshots")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("archive.cache_control", "")
	v.SetDefault("notify.backend", BackendNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "scrape-runs")
	v.SetDefault("runs.backend", BackendNone)
	v.SetDefault("runs.dsn", "")
	v.SetDefault("runs.table", "scrape_runs")
	v.SetDefault("runs.max_conns", 4)
	v.SetDefault("runs.min_conns", 0)
	v.SetDefault("runs.max_conn_lifetime_seconds", 1800)
	v.SetDefault("runs.sink_timeout_seconds", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("server.request_timeout_seconds must be >= 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive")
	}
	if c.Browser.LaunchTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.launch_timeout_seconds must be > 0")
	}
	if c.Google.NavigationTimeoutSeconds <= 0 || c.Google.InputTimeoutSeconds <= 0 || c.Google.ConsentClickTimeoutMs <= 0 {
		return fmt.Errorf("google navigation, input and consent click timeouts must be > 0")
	}
	if c.Google.ConsentPauseMs < 0 || c.Google.SettleDelayMs < 0 || c.Google.TrailingDelayMs < 0 {
		return fmt.Errorf("google delays must be >= 0")
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	switch c.Notify.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}
	switch c.Runs.Backend {
	case BackendNone, BackendMemory:
	case BackendPostgres:
		if c.Runs.DSN == "" {
			return fmt.Errorf("runs.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown runs.backend %q", c.Runs.Backend)
	}
	return nil
}

// Production reports whether the service runs in the production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

// BrowserExecPath resolves the Chrome binary: an explicit path wins, production
// falls back to the fixed binary, and otherwise chromedp's lookup is used.
func (c Config) BrowserExecPath() string {
	if c.Browser.ExecPath != "" {
		return c.Browser.ExecPath
	}
	if c.Production() {
		return c.Browser.ProductionExecPath
	}
	return ""
}

// BrowserOptions converts the browser section into launcher options.
func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:       c.Browser.Headless,
		ExecPath:       c.BrowserExecPath(),
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
		UserAgent:      c.Browser.UserAgent,
		LaunchTimeout:  time.Duration(c.Browser.LaunchTimeoutSeconds) * time.Second,
	}
}

// GoogleRoutine converts the google section into routine parameters.
func (c Config) GoogleRoutine() scrape.GoogleConfig {
	g := c.Google
	return scrape.GoogleConfig{
		URL:                 g.URL,
		DefaultSearchTerm:   g.DefaultSearchTerm,
		ConsentSelector:     g.ConsentSelector,
		InputSelector:       g.InputSelector,
		NavigationTimeout:   time.Duration(g.NavigationTimeoutSeconds) * time.Second,
		ConsentClickTimeout: time.Duration(g.ConsentClickTimeoutMs) * time.Millisecond,
		ConsentPause:        time.Duration(g.ConsentPauseMs) * time.Millisecond,
		InputTimeout:        time.Duration(g.InputTimeoutSeconds) * time.Second,
		SettleDelay:         time.Duration(g.SettleDelayMs) * time.Millisecond,
		TrailingDelay:       time.Duration(g.TrailingDelayMs) * time.Millisecond,
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RequestTimeout is the optional per-request deadline; zero disables it.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SinkTimeout bounds the post-scrape archive, notify and ledger writes.
func (c Config) SinkTimeout() time.Duration {
	return time.Duration(c.Runs.SinkTimeoutSeconds) * time.Second
}
