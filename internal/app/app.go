// Package app builds the long-lived services a command needs from Config and
// acts as the dependency injection container for the CLI.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/clock/system"
	"github.com/JakeFAU/country-leaders-scraper/internal/config"
	"github.com/JakeFAU/country-leaders-scraper/internal/enrich"
	"github.com/JakeFAU/country-leaders-scraper/internal/export"
	collyfetcher "github.com/JakeFAU/country-leaders-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/country-leaders-scraper/internal/hash/sha256"
	"github.com/JakeFAU/country-leaders-scraper/internal/id/uuid"
	"github.com/JakeFAU/country-leaders-scraper/internal/leaders"
	"github.com/JakeFAU/country-leaders-scraper/internal/pipeline"
	"github.com/JakeFAU/country-leaders-scraper/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/country-leaders-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
	"github.com/JakeFAU/country-leaders-scraper/internal/session"
	gcsstorage "github.com/JakeFAU/country-leaders-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/country-leaders-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/country-leaders-scraper/internal/storage/memory"
	"github.com/JakeFAU/country-leaders-scraper/internal/storage/postgres"
	"github.com/JakeFAU/country-leaders-scraper/internal/telemetry"
)

// Client factories are variables so tests can point them at emulators.
var (
	newGCSClient = func(ctx context.Context) (*storage.Client, error) {
		return storage.NewClient(ctx)
	}
	newPubSubClient = func(ctx context.Context, projectID string) (*pubsub.Client, error) {
		return pubsub.NewClient(ctx, projectID)
	}
	newLeaderStore = func(ctx context.Context, cfg postgres.LeaderStoreConfig) (leaderTableStore, error) {
		return postgres.NewLeaderStore(ctx, cfg)
	}
)

type leaderTableStore interface {
	scraper.LeaderStore
	EnsureTable(ctx context.Context) error
}

// Option tunes which services New builds.
type Option func(*options)

type options struct {
	catalogOnly bool
}

// CatalogOnly builds just enough to list countries: the export goes to an
// in-memory store and Postgres and Pub/Sub are never contacted.
func CatalogOnly() Option {
	return func(o *options) { o.catalogOnly = true }
}

// App holds the shared services for one command invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	blobs    scraper.BlobStore
	pipeline *pipeline.Pipeline
	closers  []func()
}

// New creates and initializes an App from cfg. It fails fast if any
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalogOnly {
		cfg.Storage.Backend = config.BackendMemory
		cfg.DB.DSN = ""
		cfg.PubSub.TopicName = ""
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.String("topic", cfg.PubSub.TopicName),
		zap.Bool("catalog_only", o.catalogOnly),
	)

	var tracing []sdktrace.TracerProviderOption
	if cfg.Tracing.OTLPEndpoint != "" {
		exporter, err := telemetry.OTLPExporter(ctx, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		tracing = append(tracing, exporter)
	}
	tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, tracing...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	})

	baseDir, exportPath := exportTarget(cfg)
	blobs, err := a.buildBlobStore(ctx, baseDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.blobs = blobs

	deps := pipeline.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.RequestTimeout(),
		}),
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Enrich.RateLimitRPS,
			DefaultBurst: cfg.Enrich.RateLimitBurst,
		}),
		Exporter: export.NewExporter(blobs, sha256.New(), logger.Named("export")),
		Clock:    system.New(),
		IDs:      uuid.New(),
	}

	if cfg.DB.DSN != "" {
		store, err := newLeaderStore(ctx, postgres.LeaderStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: int32(cfg.DB.MaxConns), // #nosec G115 -- validated small positive value
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureTable(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare leaders table: %w", err)
		}
		deps.Store = store
	}

	if cfg.PubSub.TopicName != "" {
		client, err := newPubSubClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		pub := pubsubpublisher.New(client)
		a.closers = append(a.closers, func() {
			pub.Close()
			if err := client.Close(); err != nil {
				logger.Warn("error closing pubsub client", zap.Error(err))
			}
		})
		deps.Publisher = pub
	}

	var format export.Format
	if cfg.Export.Format != "" {
		format, err = export.ParseFormat(cfg.Export.Format)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	p, err := pipeline.New(pipeline.Config{
		Session: session.Config{
			BaseURL:    cfg.API.BaseURL,
			CookiePath: cfg.API.CookiePath,
		},
		Endpoints: leaders.Config{
			CountriesPath: cfg.API.CountriesPath,
			LeadersPath:   cfg.API.LeadersPath,
		},
		Strategy:     enrich.Strategy(cfg.Enrich.Strategy),
		Workers:      cfg.Enrich.Workers,
		QueueDepth:   cfg.Enrich.QueueDepth,
		FailFast:     cfg.Enrich.FailFast,
		ExportPath:   exportPath,
		ExportFormat: format,
		Topic:        cfg.PubSub.TopicName,
	}, deps, logger.Named("pipeline"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	a.pipeline = p

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context, baseDir string) (scraper.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Info("using in-memory storage; the export is discarded on exit")
		return memorystorage.NewBlobStore(), nil
	case config.BackendGCS:
		client, err := newGCSClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("error closing GCS client", zap.Error(err))
			}
		})
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: baseDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

// exportTarget splits an absolute local export path into base directory and
// file name; every other combination uses the configured base directory.
func exportTarget(cfg config.Config) (string, string) {
	if cfg.Storage.Backend == config.BackendLocal && filepath.IsAbs(cfg.Export.Path) {
		return filepath.Dir(cfg.Export.Path), filepath.Base(cfg.Export.Path)
	}
	return cfg.Storage.BaseDir, cfg.Export.Path
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Pipeline returns the configured scrape pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// BlobStore exposes the export destination.
func (a *App) BlobStore() scraper.BlobStore {
	return a.blobs
}

// Close shuts down every service in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
