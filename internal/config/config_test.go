package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://country-leaders.onrender.com" {
		t.Fatalf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.API.CookiePath != "/cookie" || cfg.API.LeadersPath != "/leaders" {
		t.Fatalf("unexpected api paths %+v", cfg.API)
	}
	if cfg.Enrich.Workers != 5 || cfg.Enrich.Strategy != "summary" || cfg.Enrich.FailFast {
		t.Fatalf("unexpected enrich defaults %+v", cfg.Enrich)
	}
	if cfg.Export.Path != "leaders_data.json" || cfg.Export.Format != "" {
		t.Fatalf("unexpected export defaults %+v", cfg.Export)
	}
	if cfg.Storage.Backend != BackendLocal || cfg.Storage.BaseDir != "." {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if got := cfg.RequestTimeout(); got != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", got)
	}
	if cfg.Tracing.ServiceName != "country-leaders-scraper" || cfg.Tracing.OTLPEndpoint != "" {
		t.Fatalf("unexpected tracing defaults %+v", cfg.Tracing)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
api:
  base_url: http://localhost:5000
http:
  timeout_seconds: 30
  user_agent: test-agent
enrich:
  strategy: dom
  workers: 12
  queue_depth: 8
  fail_fast: true
  rate_limit_rps: 0
export:
  path: out/leaders.csv
storage:
  backend: gcs
  gcs_bucket: leaders-exports
  prefix: runs
db:
  dsn: postgres://scraper@localhost/leaders
  table: leaders_archive
pubsub:
  project_id: demo
  topic_name: leaders-exported
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:5000" || cfg.API.CountriesPath != "/countries" {
		t.Fatalf("expected api overrides merged with defaults: %+v", cfg.API)
	}
	if cfg.Enrich.Strategy != "dom" || cfg.Enrich.Workers != 12 || !cfg.Enrich.FailFast {
		t.Fatalf("expected enrich overrides to apply: %+v", cfg.Enrich)
	}
	if cfg.Storage.Backend != BackendGCS || cfg.Storage.GCSBucket != "leaders-exports" {
		t.Fatalf("expected storage overrides: %+v", cfg.Storage)
	}
	if cfg.DB.Table != "leaders_archive" || cfg.DB.MaxConns != 4 {
		t.Fatalf("expected db overrides: %+v", cfg.DB)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCRAPER_ENRICH_WORKERS", "9")
	t.Setenv("SCRAPER_EXPORT_PATH", "env.yaml")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enrich.Workers != 9 {
		t.Fatalf("expected env workers 9, got %d", cfg.Enrich.Workers)
	}
	if cfg.Export.Path != "env.yaml" {
		t.Fatalf("expected env export path, got %q", cfg.Export.Path)
	}
}

func TestLoadFlagsWinOverFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("enrich:\n  workers: 3\n  strategy: dom\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	flags := pflag.NewFlagSet("scrape", pflag.ContinueOnError)
	flags.Int("workers", 5, "")
	flags.String("strategy", "summary", "")
	flags.String("output", "leaders_data.json", "")
	flags.Bool("fail-fast", false, "")
	if err := flags.Parse([]string{"--workers=7", "--output=leaders.csv", "--fail-fast"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enrich.Workers != 7 {
		t.Fatalf("expected flag workers 7, got %d", cfg.Enrich.Workers)
	}
	if cfg.Enrich.Strategy != "dom" {
		t.Fatalf("expected unset flag to leave file value, got %q", cfg.Enrich.Strategy)
	}
	if cfg.Export.Path != "leaders.csv" || !cfg.Enrich.FailFast {
		t.Fatalf("expected flag overrides, got %+v %+v", cfg.Export, cfg.Enrich)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "api.base_url"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"workers", func(c *Config) { c.Enrich.Workers = 0 }, "enrich.workers"},
		{"queue depth", func(c *Config) { c.Enrich.QueueDepth = -1 }, "enrich.queue_depth"},
		{"burst", func(c *Config) { c.Enrich.RateLimitBurst = 0 }, "enrich.rate_limit_burst"},
		{"strategy", func(c *Config) { c.Enrich.Strategy = "scrape" }, "enrich.strategy"},
		{"export path", func(c *Config) { c.Export.Path = " " }, "export.path"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.gcs_bucket"},
		{"db conns", func(c *Config) { c.DB.DSN = "postgres://x"; c.DB.MaxConns = 0 }, "db.max_conns"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "t" }, "pubsub.project_id"},
		{"otlp endpoint", func(c *Config) { c.Tracing.OTLPEndpoint = "collector:4318" }, "tracing.otlp_endpoint"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
