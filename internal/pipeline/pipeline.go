// Package pipeline runs one scrape: catalog, leaders, enrichment, export and
// the optional persistence and notification steps.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/dispatcher"
	"github.com/JakeFAU/country-leaders-scraper/internal/enrich"
	"github.com/JakeFAU/country-leaders-scraper/internal/export"
	"github.com/JakeFAU/country-leaders-scraper/internal/leaders"
	"github.com/JakeFAU/country-leaders-scraper/internal/queue/memory"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
	"github.com/JakeFAU/country-leaders-scraper/internal/session"
	"github.com/JakeFAU/country-leaders-scraper/internal/telemetry"
	"github.com/JakeFAU/country-leaders-scraper/internal/worker"
)

// Config holds the per-run knobs.
type Config struct {
	Session      session.Config
	Endpoints    leaders.Config
	Strategy     enrich.Strategy
	Workers      int
	QueueDepth   int
	FailFast     bool
	ExportPath   string
	ExportFormat export.Format
	// Topic receives a RunCompleted event when a Publisher is configured.
	Topic string
}

// Deps are the services a Pipeline runs against. Store and Publisher are
// optional.
type Deps struct {
	Fetcher   scraper.Fetcher
	Limiter   enrich.Waiter
	Exporter  *export.Exporter
	Store     scraper.LeaderStore
	Publisher scraper.Publisher
	Clock     scraper.Clock
	IDs       scraper.IDGenerator
}

// Pipeline wires the scrape steps together.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// RunCompleted is published after a successful export.
type RunCompleted struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Countries   int       `json:"countries"`
	Leaders     int       `json:"leaders"`
	Enriched    int64     `json:"enriched"`
	Failed      int64     `json:"failed"`
	Skipped     int64     `json:"skipped"`
	ArtifactURI string    `json:"artifact_uri"`
	ContentType string    `json:"content_type"`
	Hash        string    `json:"hash,omitempty"`
	Bytes       int       `json:"bytes"`
}

// Attributes exposes routing attributes for Pub/Sub.
func (e RunCompleted) Attributes() map[string]string {
	return map[string]string{
		"run_id":       e.RunID,
		"content_type": e.ContentType,
	}
}

// New validates cfg and deps and returns a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0")
	}
	if cfg.ExportPath == "" {
		return nil, fmt.Errorf("export path is required")
	}
	strategy, err := enrich.ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	cfg.Strategy = strategy
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}, nil
}

// Countries opens a session and lists the catalog without fetching leaders.
func (p *Pipeline) Countries(ctx context.Context) ([]string, error) {
	sess, err := session.Open(ctx, p.deps.Fetcher, p.cfg.Session, p.logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return leaders.NewCatalog(sess, p.cfg.Endpoints, p.logger.Named("catalog")).ListCountries(ctx)
}

// Run executes one full scrape. Catalog and leader-list failures abort the
// run; per-leader enrichment failures only abort it when FailFast is set.
func (p *Pipeline) Run(ctx context.Context) (result scraper.RunResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer func() { telemetry.EndSpan(span, err) }()

	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return scraper.RunResult{}, fmt.Errorf("run id: %w", err)
	}
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("strategy", string(p.cfg.Strategy)))
	logger := p.logger.With(zap.String("run_id", runID))
	result = scraper.RunResult{RunID: runID, Started: p.deps.Clock.Now()}
	logger.Info("run started",
		zap.String("base_url", p.cfg.Session.BaseURL),
		zap.String("strategy", string(p.cfg.Strategy)),
		zap.Int("workers", p.cfg.Workers),
	)

	sess, err := session.Open(ctx, p.deps.Fetcher, p.cfg.Session, logger.Named("session"))
	if err != nil {
		return result, fmt.Errorf("open session: %w", err)
	}

	codes, err := leaders.NewCatalog(sess, p.cfg.Endpoints, logger.Named("catalog")).ListCountries(ctx)
	if err != nil {
		return result, err
	}
	data, err := leaders.NewFetcher(sess, p.cfg.Endpoints, logger.Named("leaders")).ListAllLeaders(ctx, codes)
	if err != nil {
		return result, err
	}
	result.Data = data
	result.Countries = data.Len()
	result.Leaders = data.LeaderCount()

	stats := &scraper.EnrichStats{}
	if err := p.enrich(ctx, sess, data, stats, logger); err != nil {
		return result, err
	}
	result.Enriched = stats.Enriched.Load()
	result.Failed = stats.Failed.Load()
	result.Skipped = stats.Skipped.Load()

	artifact, err := p.deps.Exporter.Export(ctx, p.cfg.ExportPath, p.cfg.ExportFormat, data)
	if err != nil {
		return result, fmt.Errorf("export: %w", err)
	}
	result.Artifact = artifact

	if p.deps.Store != nil {
		rows, err := p.deps.Store.SaveLeaders(ctx, runID, result.Started, data)
		if err != nil {
			return result, fmt.Errorf("store leaders: %w", err)
		}
		result.RowsStored = rows
	}

	result.Finished = p.deps.Clock.Now()

	if p.deps.Publisher != nil && p.cfg.Topic != "" {
		id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, completedEvent(result))
		if err != nil {
			return result, fmt.Errorf("publish run event: %w", err)
		}
		result.MessageID = id
	}

	logger.Info("run finished",
		zap.Int("countries", result.Countries),
		zap.Int("leaders", result.Leaders),
		zap.Int64("enriched", result.Enriched),
		zap.Int64("failed", result.Failed),
		zap.Int64("skipped", result.Skipped),
		zap.String("artifact", artifact.URI),
		zap.Duration("elapsed", result.Finished.Sub(result.Started)),
	)
	return result, nil
}

func (p *Pipeline) enrich(
	ctx context.Context,
	sess *session.Session,
	data *scraper.LeadersByCountry,
	stats *scraper.EnrichStats,
	logger *zap.Logger,
) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.enrich")
	span.SetAttributes(attribute.Int("leaders", data.LeaderCount()), attribute.Int("workers", p.cfg.Workers))
	defer func() { telemetry.EndSpan(span, err) }()

	enricher, err := enrich.New(p.cfg.Strategy, sess, p.deps.Limiter, logger.Named("enrich"))
	if err != nil {
		return err
	}
	queue := memory.NewQueue(p.cfg.QueueDepth)
	workerCfg := worker.Config{Strategy: string(p.cfg.Strategy), FailFast: p.cfg.FailFast}

	workers := make([]*worker.Worker, 0, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			enricher,
			stats,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(queue, workers).Run(ctx, dispatcher.Tasks(data))
}

func completedEvent(r scraper.RunResult) RunCompleted {
	return RunCompleted{
		RunID:       r.RunID,
		StartedAt:   r.Started,
		FinishedAt:  r.Finished,
		Countries:   r.Countries,
		Leaders:     r.Leaders,
		Enriched:    r.Enriched,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		ArtifactURI: r.Artifact.URI,
		ContentType: r.Artifact.ContentType,
		Hash:        r.Artifact.Hash,
		Bytes:       r.Artifact.Bytes,
	}
}
