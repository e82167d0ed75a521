package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Leader is a single political leader as served by the leaders API.
// FirstParagraph is filled in by enrichment and left empty when it fails.
type Leader struct {
	ID             string `json:"id" yaml:"id"`
	FirstName      string `json:"first_name" yaml:"first_name"`
	LastName       string `json:"last_name" yaml:"last_name"`
	BirthDate      string `json:"birth_date" yaml:"birth_date"`
	DeathDate      string `json:"death_date" yaml:"death_date"`
	PlaceOfBirth   string `json:"place_of_birth" yaml:"place_of_birth"`
	WikipediaURL   string `json:"wikipedia_url" yaml:"wikipedia_url"`
	StartMandate   string `json:"start_mandate" yaml:"start_mandate"`
	EndMandate     string `json:"end_mandate" yaml:"end_mandate"`
	FirstParagraph string `json:"first_paragraph,omitempty" yaml:"first_paragraph,omitempty"`
}

// FullName joins first and last name for log output.
func (l Leader) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	default:
		return l.FirstName + " " + l.LastName
	}
}

// LeadersByCountry maps country codes to their leaders while remembering the
// order in which countries were added. Leader order within a country is the
// order returned by the API.
type LeadersByCountry struct {
	codes   []string
	leaders map[string][]*Leader
}

// NewLeadersByCountry returns an empty mapping.
func NewLeadersByCountry() *LeadersByCountry {
	return &LeadersByCountry{leaders: make(map[string][]*Leader)}
}

// Set stores the leaders for code. A code that is already present keeps its
// original position.
func (m *LeadersByCountry) Set(code string, leaders []*Leader) {
	if m.leaders == nil {
		m.leaders = make(map[string][]*Leader)
	}
	if _, ok := m.leaders[code]; !ok {
		m.codes = append(m.codes, code)
	}
	if leaders == nil {
		leaders = []*Leader{}
	}
	m.leaders[code] = leaders
}

// Codes returns the country codes in insertion order.
func (m *LeadersByCountry) Codes() []string {
	return append([]string(nil), m.codes...)
}

// Leaders returns the leaders stored for code.
func (m *LeadersByCountry) Leaders(code string) []*Leader {
	return m.leaders[code]
}

// Has reports whether code is present.
func (m *LeadersByCountry) Has(code string) bool {
	_, ok := m.leaders[code]
	return ok
}

// Len returns the number of countries.
func (m *LeadersByCountry) Len() int {
	return len(m.codes)
}

// LeaderCount returns the number of leaders across all countries.
func (m *LeadersByCountry) LeaderCount() int {
	total := 0
	for _, code := range m.codes {
		total += len(m.leaders[code])
	}
	return total
}

// Each calls fn for every leader in country then leader order.
func (m *LeadersByCountry) Each(fn func(code string, index int, leader *Leader)) {
	for _, code := range m.codes {
		for i, l := range m.leaders[code] {
			fn(code, i, l)
		}
	}
}

// MarshalJSON writes the mapping as a JSON object with keys in insertion order.
func (m *LeadersByCountry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, code := range m.codes {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeRaw(&buf, code); err != nil {
			return nil, fmt.Errorf("marshal country %q: %w", code, err)
		}
		buf.WriteByte(':')
		if err := writeRaw(&buf, m.leaders[code]); err != nil {
			return nil, fmt.Errorf("marshal leaders for %q: %w", code, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeRaw encodes v without HTML escaping and without the trailing newline
// json.Encoder appends.
func writeRaw(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// UnmarshalJSON reads a JSON object of country code to leader arrays,
// keeping the key order of the document.
func (m *LeadersByCountry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read mapping start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("leaders mapping must be a JSON object")
	}
	out := NewLeadersByCountry()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read country key: %w", err)
		}
		code, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", tok)
		}
		var leaders []*Leader
		if err := dec.Decode(&leaders); err != nil {
			return fmt.Errorf("decode leaders for %q: %w", code, err)
		}
		out.Set(code, leaders)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read mapping end: %w", err)
	}
	*m = *out
	return nil
}

// EnrichTask asks a worker to fill in one leader's first paragraph.
type EnrichTask struct {
	Country string
	Index   int
	Leader  *Leader
}

// EnrichStats counts enrichment outcomes across all workers.
type EnrichStats struct {
	Enriched atomic.Int64
	Failed   atomic.Int64
	Skipped  atomic.Int64
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Cookies []*http.Cookie
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Cookies parses the Set-Cookie headers of the response.
func (r FetchResponse) Cookies() []*http.Cookie {
	if len(r.Headers) == 0 {
		return nil
	}
	return (&http.Response{Header: r.Headers}).Cookies()
}

// Artifact describes an export written to a blob store.
type Artifact struct {
	URI         string
	Path        string
	ContentType string
	Hash        string
	Bytes       int
}

// RunResult summarizes one pipeline execution.
type RunResult struct {
	RunID      string
	Started    time.Time
	Finished   time.Time
	Countries  int
	Leaders    int
	Enriched   int64
	Failed     int64
	Skipped    int64
	Artifact   Artifact
	Data       *LeadersByCountry
	MessageID  string
	RowsStored int
}
