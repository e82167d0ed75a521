package scraper

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Enricher resolves a Wikipedia URL to the cleaned lead paragraph.
type Enricher interface {
	Enrich(ctx context.Context, wikipediaURL string) (string, error)
}

// Queue provides enqueue/dequeue semantics for enrichment tasks.
type Queue interface {
	Enqueue(ctx context.Context, task EnrichTask) error
	Dequeue(ctx context.Context) (EnrichTask, error)
	Close()
}

// BlobStore writes export artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// LeaderStore persists the leaders of one run.
type LeaderStore interface {
	SaveLeaders(ctx context.Context, runID string, scrapedAt time.Time, data *LeadersByCountry) (int, error)
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for export integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
