// Package worker implements the enrichment loop run by each pool member.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/metrics"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// Config controls Worker behavior.
type Config struct {
	// Strategy labels enrichment metrics.
	Strategy string
	// FailFast makes the first enrichment error stop the worker and be
	// returned from Run. Otherwise errors are logged and the leader keeps an
	// empty first paragraph.
	FailFast bool
}

// Worker consumes enrichment tasks until the queue is drained.
type Worker struct {
	queue    scraper.Queue
	enricher scraper.Enricher
	stats    *scraper.EnrichStats
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. stats may be shared between workers.
func New(
	queue scraper.Queue,
	enricher scraper.Enricher,
	stats *scraper.EnrichStats,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = &scraper.EnrichStats{}
	}
	return &Worker{
		queue:    queue,
		enricher: enricher,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming tasks until the queue is closed and drained, the
// context finishes, or (with FailFast) a task fails.
func (w *Worker) Run(ctx context.Context) error {
	if w.enricher == nil {
		return errors.New("no enricher configured")
	}
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, scraper.ErrQueueClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("worker stopped: %w", ctx.Err())
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return fmt.Errorf("dequeue: %w", err)
		}
		if err := w.processTask(ctx, task); err != nil && w.cfg.FailFast {
			return err
		}
	}
}

func (w *Worker) processTask(ctx context.Context, task scraper.EnrichTask) error {
	leader := task.Leader
	if leader == nil {
		return nil
	}
	if leader.WikipediaURL == "" {
		w.stats.Skipped.Add(1)
		metrics.ObserveEnrichment(w.cfg.Strategy, metrics.OutcomeSkipped)
		w.logger.Debug("leader has no wikipedia url",
			zap.String("country", task.Country),
			zap.String("leader_id", leader.ID),
		)
		return nil
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	paragraph, err := w.enricher.Enrich(ctx, leader.WikipediaURL)
	if err != nil {
		leader.FirstParagraph = ""
		w.stats.Failed.Add(1)
		metrics.ObserveEnrichment(w.cfg.Strategy, metrics.OutcomeFailed)
		w.logger.Warn("enrichment failed",
			zap.String("country", task.Country),
			zap.String("leader_id", leader.ID),
			zap.String("leader", leader.FullName()),
			zap.String("url", leader.WikipediaURL),
			zap.Bool("parse_error", scraper.IsParseError(err)),
			zap.Error(err),
		)
		return fmt.Errorf("enrich %s (%s): %w", leader.ID, task.Country, err)
	}

	leader.FirstParagraph = paragraph
	w.stats.Enriched.Add(1)
	metrics.ObserveEnrichment(w.cfg.Strategy, metrics.OutcomeEnriched)
	w.logger.Debug("leader enriched",
		zap.String("country", task.Country),
		zap.String("leader_id", leader.ID),
		zap.Int("chars", len(paragraph)),
	)
	return nil
}
