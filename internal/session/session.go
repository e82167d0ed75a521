// Package session wraps a Fetcher with the cookie issued by the leaders API.
// A Session is opened once per run and is read-only afterwards, so it can be
// shared by every fetcher and enrichment worker without locking.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// Config controls where the session lives.
type Config struct {
	BaseURL    string
	CookiePath string
}

// Session carries the API cookie and the fetcher used for every request.
type Session struct {
	fetcher scraper.Fetcher
	baseURL *url.URL
	cookies []*http.Cookie
	logger  *zap.Logger
}

// Open requests a fresh cookie from the API and returns a Session bound to it.
func Open(ctx context.Context, fetcher scraper.Fetcher, cfg Config, logger *zap.Logger) (*Session, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	cookiePath := cfg.CookiePath
	if cookiePath == "" {
		cookiePath = "/cookie"
	}
	s := &Session{
		fetcher: fetcher,
		baseURL: base,
		logger:  logger,
	}
	cookieURL := s.Resolve(cookiePath)
	resp, err := fetcher.Fetch(ctx, scraper.FetchRequest{URL: cookieURL})
	if err != nil {
		return nil, fmt.Errorf("get cookie: %w", err)
	}
	s.cookies = resp.Cookies()
	if len(s.cookies) == 0 {
		logger.Warn("cookie endpoint returned no cookies", zap.String("url", cookieURL))
	} else {
		logger.Debug("session cookie acquired",
			zap.String("url", cookieURL),
			zap.Int("cookies", len(s.cookies)),
		)
	}
	return s, nil
}

// New builds a Session from cookies obtained elsewhere.
func New(fetcher scraper.Fetcher, baseURL string, cookies []*http.Cookie, logger *zap.Logger) (*Session, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Session{
		fetcher: fetcher,
		baseURL: base,
		cookies: append([]*http.Cookie(nil), cookies...),
		logger:  logger,
	}, nil
}

// Cookies returns a copy of the session cookies.
func (s *Session) Cookies() []*http.Cookie {
	return append([]*http.Cookie(nil), s.cookies...)
}

// BaseURL returns the API root the session was opened against.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

// Resolve turns an endpoint path into an absolute URL on the API host.
// Absolute URLs are returned unchanged.
func (s *Session) Resolve(endpoint string) string {
	ref, err := url.Parse(endpoint)
	if err != nil || ref.IsAbs() {
		return endpoint
	}
	ref.Path = strings.TrimRight(s.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	return s.baseURL.ResolveReference(ref).String()
}

// Get fetches rawURL with params appended to its query string. The session
// cookies are only attached to requests for the API host.
func (s *Session) Get(ctx context.Context, rawURL string, params url.Values) (scraper.FetchResponse, error) {
	target, err := withParams(rawURL, params)
	if err != nil {
		return scraper.FetchResponse{}, &scraper.FetchError{URL: rawURL, Err: err}
	}
	req := scraper.FetchRequest{URL: target}
	if s.sameHost(target) {
		req.Cookies = s.cookies
	}
	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return scraper.FetchResponse{}, fmt.Errorf("get %s: %w", target, err)
	}
	return resp, nil
}

// GetJSON fetches endpoint (relative to the API root, or absolute) and
// decodes the JSON body into out. Undecodable bodies are reported as
// *scraper.ParseError.
func (s *Session) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := s.Resolve(endpoint)
	resp, err := s.Get(ctx, target, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &scraper.ParseError{URL: resp.URL, Reason: "invalid JSON body", Err: err}
	}
	return nil
}

func (s *Session) sameHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, s.baseURL.Host)
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	return u, nil
}

func withParams(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
