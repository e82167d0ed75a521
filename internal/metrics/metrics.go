// Package metrics exposes Prometheus collectors for the leaders scraper.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Enrichment outcomes recorded by ObserveEnrichment.
const (
	OutcomeEnriched = "enriched"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

var (
	scraperFetchesTotal           *prometheus.CounterVec
	scraperFetchDurationSeconds   *prometheus.HistogramVec
	scraperEnrichmentsTotal       *prometheus.CounterVec
	scraperLeadersTotal           *prometheus.CounterVec
	scraperActiveWorkers          prometheus.Gauge
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	scraperExportBytes            *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetches_total",
				Help: "Total number of HTTP fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		scraperFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of HTTP fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		scraperEnrichmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_enrichments_total",
				Help: "Total number of leader enrichments, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		scraperLeadersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_leaders_total",
				Help: "Total number of leaders listed, labeled by country.",
			},
			[]string{"country"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of enrichment workers currently processing a task.",
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scraperExportBytes = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scraper_export_bytes",
				Help: "Size of the last export, labeled by format.",
			},
			[]string{"format"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one HTTP fetch.
func ObserveFetch(site string, status string, duration time.Duration) {
	Init()
	scraperFetchesTotal.WithLabelValues(site, status).Inc()
	scraperFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveEnrichment increments the enrichment counter for the given outcome.
func ObserveEnrichment(strategy, outcome string) {
	Init()
	scraperEnrichmentsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveLeaders records how many leaders a country returned.
func ObserveLeaders(country string, count int) {
	Init()
	scraperLeadersTotal.WithLabelValues(country).Add(float64(count))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scraperActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveExport records the size of an export artifact.
func ObserveExport(format string, size int) {
	Init()
	scraperExportBytes.WithLabelValues(format).Set(float64(size))
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
