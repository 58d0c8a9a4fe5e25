package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Addr() != "0.0.0.0:3000" {
		t.Fatalf("expected default bind 0.0.0.0:3000, got %s", cfg.Addr())
	}
	if cfg.RequestTimeout() != 0 {
		t.Fatalf("expected no request deadline by default, got %v", cfg.RequestTimeout())
	}
	if cfg.Production() || cfg.BrowserExecPath() != "" {
		t.Fatalf("expected development environment with default chrome lookup")
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("expected metrics to be enabled by default")
	}
	if cfg.Archive.Backend != BackendNone || cfg.Notify.Backend != BackendNone || cfg.Runs.Backend != BackendNone {
		t.Fatal("expected every sink to be disabled by default")
	}

	g := cfg.GoogleRoutine()
	if g.URL != "https://www.google.com" || g.DefaultSearchTerm != "ChatGPT" {
		t.Fatalf("unexpected google defaults: %+v", g)
	}
	if g.NavigationTimeout != 30*time.Second || g.InputTimeout != 10*time.Second || g.ConsentClickTimeout != 2*time.Second {
		t.Fatalf("unexpected google timeouts: %+v", g)
	}
	if g.ConsentPause != time.Second || g.SettleDelay != 3*time.Second || g.TrailingDelay != 5*time.Second {
		t.Fatalf("unexpected google delays: %+v", g)
	}

	b := cfg.BrowserOptions()
	if !b.Headless || b.ViewportWidth != 1366 || b.ViewportHeight != 768 || b.LaunchTimeout != 30*time.Second {
		t.Fatalf("unexpected browser options: %+v", b)
	}
}

func TestLoadPlatformEnv(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Fatalf("expected PORT to set the port, got %d", cfg.Server.Port)
	}
	if !cfg.Production() {
		t.Fatalf("expected NODE_ENV=production to select production, got %q", cfg.Environment)
	}
	if got := cfg.BrowserExecPath(); got != "/usr/bin/chromium" {
		t.Fatalf("expected production chrome path, got %q", got)
	}
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("GATEWAY_SERVER_PORT", "9091")
	t.Setenv("GATEWAY_GOOGLE_TRAILING_DELAY_MS", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9091 {
		t.Fatalf("expected GATEWAY_SERVER_PORT to win, got %d", cfg.Server.Port)
	}
	if cfg.GoogleRoutine().TrailingDelay != 0 {
		t.Fatalf("expected trailing delay override, got %v", cfg.GoogleRoutine().TrailingDelay)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 120
environment: production
browser:
  exec_path: /opt/chrome/chrome
  launch_timeout_seconds: 45
google:
  default_search_term: golang
  settle_delay_ms: 1500
logging:
  development: false
archive:
  backend: gcs
  gcs_bucket: snapshots
notify:
  backend: pubsub
  project_id: demo
  topic: runs
runs:
  backend: postgres
  dsn: postgres://gateway@localhost/gateway
  sink_timeout_seconds: 5
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.RequestTimeout() != 2*time.Minute {
		t.Fatalf("expected server overrides to apply: %+v", cfg.Server)
	}
	if got := cfg.BrowserExecPath(); got != "/opt/chrome/chrome" {
		t.Fatalf("expected explicit exec path to win over production default, got %q", got)
	}
	if cfg.BrowserOptions().LaunchTimeout != 45*time.Second {
		t.Fatalf("expected launch timeout override")
	}
	g := cfg.GoogleRoutine()
	if g.DefaultSearchTerm != "golang" || g.SettleDelay != 1500*time.Millisecond {
		t.Fatalf("expected google overrides to apply: %+v", g)
	}
	if g.InputSelector != "textarea" {
		t.Fatalf("expected untouched keys to keep defaults, got %q", g.InputSelector)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if cfg.Archive.GCSBucket != "snapshots" || cfg.Notify.Topic != "runs" || cfg.SinkTimeout() != 5*time.Second {
		t.Fatalf("expected sink overrides to apply: %+v %+v %+v", cfg.Archive, cfg.Notify, cfg.Runs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 3000, MaxBodyBytes: 1 << 20},
		Browser: BrowserConfig{ViewportWidth: 1366, ViewportHeight: 768, LaunchTimeoutSeconds: 30},
		Google:  GoogleConfig{NavigationTimeoutSeconds: 30, InputTimeoutSeconds: 10, ConsentClickTimeoutMs: 2000},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, want: "server.port"},
		{name: "negative request timeout", mutate: func(c *Config) { c.Server.RequestTimeoutSeconds = -1 }, want: "request_timeout_seconds"},
		{name: "body cap", mutate: func(c *Config) { c.Server.MaxBodyBytes = 0 }, want: "max_body_bytes"},
		{name: "viewport", mutate: func(c *Config) { c.Browser.ViewportHeight = 0 }, want: "viewport"},
		{name: "launch timeout", mutate: func(c *Config) { c.Browser.LaunchTimeoutSeconds = 0 }, want: "launch_timeout_seconds"},
		{name: "google timeout", mutate: func(c *Config) { c.Google.InputTimeoutSeconds = 0 }, want: "google"},
		{name: "consent click timeout", mutate: func(c *Config) { c.Google.ConsentClickTimeoutMs = 0 }, want: "consent click"},
		{name: "negative delay", mutate: func(c *Config) { c.Google.TrailingDelayMs = -1 }, want: "delays"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Backend = BackendGCS }, want: "archive.gcs_bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Archive.Backend = BackendLocal }, want: "archive.local_dir"},
		{name: "pubsub without project", mutate: func(c *Config) { c.Notify.Backend = BackendPubSub }, want: "notify.project_id"},
		{name: "unknown notify", mutate: func(c *Config) { c.Notify.Backend = "kafka" }, want: "notify.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Runs.Backend = BackendPostgres }, want: "runs.dsn"},
		{name: "unknown runs", mutate: func(c *Config) { c.Runs.Backend = "mysql" }, want: "runs.backend"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
