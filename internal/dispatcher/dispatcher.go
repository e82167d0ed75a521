// Package dispatcher fans enrichment tasks out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
	"github.com/JakeFAU/country-leaders-scraper/internal/worker"
)

// Dispatcher feeds a queue and runs the workers draining it.
type Dispatcher struct {
	queue   scraper.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue scraper.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run enqueues every task, closes the queue, and blocks until all workers
// have drained it. The first worker error cancels the others and is returned.
func (d *Dispatcher) Run(ctx context.Context, tasks []scraper.EnrichTask) error {
	if len(d.workers) == 0 {
		return fmt.Errorf("dispatcher has no workers")
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer d.queue.Close()
		for _, task := range tasks {
			if err := d.Enqueue(gctx, task); err != nil {
				return err
			}
		}
		return nil
	})

	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task scraper.EnrichTask) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Tasks builds one task per leader in mapping order.
func Tasks(data *scraper.LeadersByCountry) []scraper.EnrichTask {
	tasks := make([]scraper.EnrichTask, 0, data.LeaderCount())
	data.Each(func(code string, index int, leader *scraper.Leader) {
		tasks = append(tasks, scraper.EnrichTask{Country: code, Index: index, Leader: leader})
	})
	return tasks
}
