// Package memory provides the bounded in-memory queue feeding enrichment workers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan scraper.EnrichTask
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan scraper.EnrichTask, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
// Only the producer that will later call Close may enqueue.
func (q *Queue) Enqueue(ctx context.Context, task scraper.EnrichTask) error {
	if q.isClosed() {
		return errors.New("enqueue on closed queue")
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Once the queue
// is closed and drained it returns scraper.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (scraper.EnrichTask, error) {
	select {
	case <-ctx.Done():
		return scraper.EnrichTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return scraper.EnrichTask{}, scraper.ErrQueueClosed
		}
		return task, nil
	}
}

// Close closes the underlying channel; queued tasks can still be drained.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

func (q *Queue) isClosed() bool {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	return q.closed
}
