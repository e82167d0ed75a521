// Package enrich turns a leader's Wikipedia URL into the cleaned lead
// paragraph of the article.
//
// Two strategies are available. StrategyDOM downloads the rendered article
// and takes the first paragraph holding bold text, which is how Wikipedia
// marks the subject in the lead. StrategySummary asks the REST summary API
// for the same article and reads its "extract" field. Both results go
// through Sanitize.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// Strategy selects how the lead paragraph is obtained.
type Strategy string

// Supported strategies.
const (
	StrategyDOM     Strategy = "dom"
	StrategySummary Strategy = "summary"
)

const (
	leadSelector = "p:has(b)"
	articlePath  = "/wiki/"
	summaryPath  = "/api/rest_v1/page/summary/"
)

var citationMarkers = regexp.MustCompile(`\[[^\]]*\]`)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(raw string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case StrategyDOM, StrategySummary:
		return s, nil
	case "":
		return StrategySummary, nil
	default:
		return "", fmt.Errorf("unknown enrichment strategy %q (want %q or %q)", raw, StrategyDOM, StrategySummary)
	}
}

// Getter fetches absolute URLs; *session.Session satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values) (scraper.FetchResponse, error)
}

// Waiter throttles requests per host; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Enricher implements scraper.Enricher for one strategy.
type Enricher struct {
	strategy Strategy
	getter   Getter
	limiter  Waiter
	logger   *zap.Logger
}

// New builds an Enricher. limiter may be nil.
func New(strategy Strategy, getter Getter, limiter Waiter, logger *zap.Logger) (*Enricher, error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	parsed, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		strategy: parsed,
		getter:   getter,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Strategy reports the configured strategy.
func (e *Enricher) Strategy() Strategy {
	return e.strategy
}

// Enrich fetches and cleans the lead paragraph for wikipediaURL.
func (e *Enricher) Enrich(ctx context.Context, wikipediaURL string) (string, error) {
	var (
		raw string
		err error
	)
	switch e.strategy {
	case StrategyDOM:
		raw, err = e.fromDOM(ctx, wikipediaURL)
	default:
		raw, err = e.fromSummary(ctx, wikipediaURL)
	}
	if err != nil {
		return "", err
	}
	paragraph := Sanitize(raw)
	if paragraph == "" {
		return "", &scraper.ParseError{URL: wikipediaURL, Reason: "lead paragraph is empty"}
	}
	return paragraph, nil
}

func (e *Enricher) fromDOM(ctx context.Context, wikipediaURL string) (string, error) {
	resp, err := e.get(ctx, wikipediaURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", &scraper.ParseError{URL: wikipediaURL, Reason: "invalid HTML", Err: err}
	}
	lead := doc.Find(leadSelector).First()
	if lead.Length() == 0 {
		return "", &scraper.ParseError{URL: wikipediaURL, Reason: "no paragraph with bold text"}
	}
	return lead.Text(), nil
}

type summary struct {
	Extract *string `json:"extract"`
}

func (e *Enricher) fromSummary(ctx context.Context, wikipediaURL string) (string, error) {
	apiURL, err := SummaryURL(wikipediaURL)
	if err != nil {
		return "", err
	}
	resp, err := e.get(ctx, apiURL)
	if err != nil {
		return "", err
	}
	var s summary
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return "", &scraper.ParseError{URL: apiURL, Reason: "invalid summary JSON", Err: err}
	}
	if s.Extract == nil {
		return "", &scraper.ParseError{URL: apiURL, Reason: "summary has no extract field"}
	}
	return *s.Extract, nil
}

func (e *Enricher) get(ctx context.Context, rawURL string) (scraper.FetchResponse, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, rawURL); err != nil {
			return scraper.FetchResponse{}, fmt.Errorf("throttle %s: %w", rawURL, err)
		}
	}
	resp, err := e.getter.Get(ctx, rawURL, nil)
	if err != nil {
		return scraper.FetchResponse{}, fmt.Errorf("enrich %s: %w", rawURL, err)
	}
	return resp, nil
}

// SummaryURL rewrites an article URL such as
// https://en.wikipedia.org/wiki/Barack_Obama into its REST summary URL
// https://en.wikipedia.org/api/rest_v1/page/summary/Barack_Obama. The host
// and the escaped title are kept, except that a slash inside the title is
// escaped so the API reads it as a single path segment (AC/DC -> AC%2FDC).
func SummaryURL(articleURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil {
		return "", &scraper.ParseError{URL: articleURL, Reason: "invalid article URL", Err: err}
	}
	escaped := u.EscapedPath()
	if u.Host == "" || !strings.HasPrefix(escaped, articlePath) {
		return "", &scraper.ParseError{URL: articleURL, Reason: "not a wikipedia article URL"}
	}
	title := strings.ReplaceAll(strings.TrimPrefix(escaped, articlePath), "/", "%2F")
	if title == "" {
		return "", &scraper.ParseError{URL: articleURL, Reason: "article URL has no title"}
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + summaryPath + title, nil
}

// Sanitize strips bracketed citation markers such as [1] or [note 2] and
// trims surrounding whitespace.
func Sanitize(paragraph string) string {
	return strings.TrimSpace(citationMarkers.ReplaceAllString(paragraph, ""))
}
