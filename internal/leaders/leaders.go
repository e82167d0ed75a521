// Package leaders lists countries and their leaders from the leaders API.
package leaders

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/metrics"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// APIClient is the subset of *session.Session the fetchers need.
type APIClient interface {
	GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error
}

// Config names the API endpoints.
type Config struct {
	CountriesPath string
	LeadersPath   string
}

func (c Config) withDefaults() Config {
	if c.CountriesPath == "" {
		c.CountriesPath = "/countries"
	}
	if c.LeadersPath == "" {
		c.LeadersPath = "/leaders"
	}
	return c
}

// Catalog fetches the set of valid country codes.
type Catalog struct {
	client APIClient
	cfg    Config
	logger *zap.Logger
}

// NewCatalog constructs a Catalog.
func NewCatalog(client APIClient, cfg Config, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// ListCountries returns the country codes served by the API, deduplicated
// and in API order.
func (c *Catalog) ListCountries(ctx context.Context) ([]string, error) {
	var raw []string
	if err := c.client.GetJSON(ctx, c.cfg.CountriesPath, nil, &raw); err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	codes := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, code := range raw {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	c.logger.Info("countries listed", zap.Int("countries", len(codes)))
	return codes, nil
}

// Fetcher lists the leaders of each country.
type Fetcher struct {
	client APIClient
	cfg    Config
	logger *zap.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(client APIClient, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// ListLeaders returns the leaders of one country in API order.
func (f *Fetcher) ListLeaders(ctx context.Context, code string) ([]*scraper.Leader, error) {
	var leaders []*scraper.Leader
	params := url.Values{"country": {code}}
	if err := f.client.GetJSON(ctx, f.cfg.LeadersPath, params, &leaders); err != nil {
		return nil, fmt.Errorf("list leaders for %s: %w", code, err)
	}
	out := leaders[:0]
	for _, l := range leaders {
		if l != nil {
			out = append(out, l)
		}
	}
	metrics.ObserveLeaders(code, len(out))
	return out, nil
}

// ListAllLeaders calls ListLeaders once per code, in order, and stops at the
// first error. The result holds exactly the given codes as keys.
func (f *Fetcher) ListAllLeaders(ctx context.Context, codes []string) (*scraper.LeadersByCountry, error) {
	out := scraper.NewLeadersByCountry()
	for _, code := range codes {
		if out.Has(code) {
			continue
		}
		leaders, err := f.ListLeaders(ctx, code)
		if err != nil {
			return nil, err
		}
		f.logger.Debug("leaders listed", zap.String("country", code), zap.Int("leaders", len(leaders)))
		out.Set(code, leaders)
	}
	f.logger.Info("leaders listed for all countries",
		zap.Int("countries", out.Len()),
		zap.Int("leaders", out.LeaderCount()),
	)
	return out, nil
}
