// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPER_ENRICH_WORKERS=8.
const EnvPrefix = "SCRAPER"

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Export  ExportConfig  `mapstructure:"export"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// APIConfig points at the country-leaders REST API.
type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	CookiePath    string `mapstructure:"cookie_path"`
	CountriesPath string `mapstructure:"countries_path"`
	LeadersPath   string `mapstructure:"leaders_path"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// EnrichConfig governs the enrichment worker pool.
type EnrichConfig struct {
	Strategy       string  `mapstructure:"strategy"`
	Workers        int     `mapstructure:"workers"`
	QueueDepth     int     `mapstructure:"queue_depth"`
	FailFast       bool    `mapstructure:"fail_fast"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// ExportConfig names the output artifact.
type ExportConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects where the export artifact is written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres copy of each run.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls span export. Without an endpoint spans only feed
// the trace context stamped on Pub/Sub messages.
type TracingConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"base-url":  "api.base_url",
	"output":    "export.path",
	"format":    "export.format",
	"strategy":  "enrich.strategy",
	"workers":   "enrich.workers",
	"fail-fast": "enrich.fail_fast",
	"storage":   "storage.backend",
	"log-level": "logging.level",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that map to config keys. Later sources win.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
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
	v.SetDefault("api.base_url", "https://country-leaders.onrender.com")
	v.SetDefault("api.cookie_path", "/cookie")
	v.SetDefault("api.countries_path", "/countries")
	v.SetDefault("api.leaders_path", "/leaders")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "leaders-scraper/0.1")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("enrich.strategy", "summary")
	v.SetDefault("enrich.workers", 5)
	v.SetDefault("enrich.queue_depth", 64)
	v.SetDefault("enrich.fail_fast", false)
	v.SetDefault("enrich.rate_limit_rps", 10)
	v.SetDefault("enrich.rate_limit_burst", 5)
	v.SetDefault("export.path", "leaders_data.json")
	v.SetDefault("export.format", "")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "leaders")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.service_name", "country-leaders-scraper")
	v.SetDefault("tracing.otlp_endpoint", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich.workers must be > 0")
	}
	if c.Enrich.QueueDepth < 0 {
		return fmt.Errorf("enrich.queue_depth must be >= 0")
	}
	if c.Enrich.RateLimitRPS < 0 {
		return fmt.Errorf("enrich.rate_limit_rps must be >= 0")
	}
	if c.Enrich.RateLimitRPS > 0 && c.Enrich.RateLimitBurst <= 0 {
		return fmt.Errorf("enrich.rate_limit_burst must be > 0 when rate limiting is enabled")
	}
	switch strings.ToLower(c.Enrich.Strategy) {
	case "dom", "summary", "":
	default:
		return fmt.Errorf("enrich.strategy must be dom or summary, got %q", c.Enrich.Strategy)
	}
	if strings.TrimSpace(c.Export.Path) == "" {
		return fmt.Errorf("export.path is required")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local, memory or gcs, got %q", c.Storage.Backend)
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.Tracing.OTLPEndpoint != "" {
		u, err := url.Parse(c.Tracing.OTLPEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("tracing.otlp_endpoint must be an http(s) URL, got %q", c.Tracing.OTLPEndpoint)
		}
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout converts http.timeout_seconds to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
