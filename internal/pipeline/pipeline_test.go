package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/enrich"
	"github.com/JakeFAU/country-leaders-scraper/internal/export"
	collyfetcher "github.com/JakeFAU/country-leaders-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/country-leaders-scraper/internal/hash/sha256"
	"github.com/JakeFAU/country-leaders-scraper/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/country-leaders-scraper/internal/publisher/memory"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
	"github.com/JakeFAU/country-leaders-scraper/internal/session"
	memorystorage "github.com/JakeFAU/country-leaders-scraper/internal/storage/memory"
)

type fakeAPI struct {
	srv         *httptest.Server
	cookieCalls atomic.Int32
	leaderCalls sync.Map
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, _ *http.Request) {
		api.cookieCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "user_cookie", Value: "c00kie", Path: "/"})
	})
	requireCookie := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie("user_cookie"); err != nil || c.Value != "c00kie" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"message":"The cookie is missing"}`))
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/countries", requireCookie(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["us","be","fr"]`))
	}))
	mux.HandleFunc("/leaders", requireCookie(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("country")
		n, _ := api.leaderCalls.LoadOrStore(code, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		wiki := api.srv.URL + "/wiki/"
		switch code {
		case "us":
			fmt.Fprintf(w, `[
				{"id":"Q23","first_name":"George","last_name":"Washington","birth_date":"1732-02-22","death_date":"1799-12-14","place_of_birth":"Westmoreland County","wikipedia_url":"%sGeorge_Washington","start_mandate":"1789-04-30","end_mandate":"1797-03-04"},
				{"id":"Q76","first_name":"Barack","last_name":"Obama","birth_date":"1961-08-04","death_date":null,"place_of_birth":"Honolulu","wikipedia_url":"%sBarack_Obama","start_mandate":"2009-01-20","end_mandate":"2017-01-20"}
			]`, wiki, wiki)
		case "be":
			_, _ = w.Write([]byte(`[]`))
		case "fr":
			fmt.Fprintf(w, `[
				{"id":"Q2","first_name":"Charles","last_name":"de Gaulle","wikipedia_url":"%sCharles_de_Gaulle"},
				{"id":"Q9","first_name":"Nobody","last_name":"Known","wikipedia_url":"%sNobody"},
				{"id":"Q10","first_name":"No","last_name":"Link"}
			]`, wiki, wiki)
		default:
			http.Error(w, "unknown country", http.StatusNotFound)
		}
	}))
	mux.HandleFunc("/wiki/", func(w http.ResponseWriter, r *http.Request) {
		title := strings.TrimPrefix(r.URL.Path, "/wiki/")
		if title == "Nobody" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<html><body><p class="mw-empty-elt"></p><p><b>%s</b> was a head of state.[1]</p></body></html>`,
			strings.ReplaceAll(title, "_", " "))
	})
	mux.HandleFunc("/api/rest_v1/page/summary/", func(w http.ResponseWriter, r *http.Request) {
		title := strings.TrimPrefix(r.URL.Path, "/api/rest_v1/page/summary/")
		if title == "Nobody" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"title":%q,"extract":"%s led the country.[2] "}`, title, strings.ReplaceAll(title, "_", " "))
	})
	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n atomic.Int32 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("run-%d", s.n.Add(1)), nil
}

type recordingStore struct {
	mu    sync.Mutex
	runID string
	count int
}

func (s *recordingStore) SaveLeaders(_ context.Context, runID string, _ time.Time, data *scraper.LeadersByCountry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.count = data.LeaderCount()
	return s.count, nil
}

func (s *recordingStore) Close() {}

func newPipeline(t *testing.T, api *fakeAPI, cfg Config, deps Deps) *Pipeline {
	t.Helper()

	cfg.Session = session.Config{BaseURL: api.srv.URL}
	if cfg.Workers == 0 {
		cfg.Workers = 3
	}
	if cfg.ExportPath == "" {
		cfg.ExportPath = "leaders_data.json"
	}
	if deps.Fetcher == nil {
		deps.Fetcher = collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second})
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	}
	if deps.IDs == nil {
		deps.IDs = &seqIDs{}
	}
	p, err := New(cfg, deps, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestRunSummaryStrategyEndToEnd(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	blobs := memorystorage.NewBlobStore()
	pub := memorypublisher.New()
	store := &recordingStore{}
	p := newPipeline(t, api, Config{Strategy: enrich.StrategySummary, Topic: "leaders-exported"}, Deps{
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Exporter:  export.NewExporter(blobs, sha256.New(), zap.NewNop()),
		Store:     store,
		Publisher: pub,
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 3, result.Countries)
	assert.Equal(t, 5, result.Leaders)
	assert.EqualValues(t, 3, result.Enriched)
	assert.EqualValues(t, 1, result.Failed)
	assert.EqualValues(t, 1, result.Skipped)
	assert.Equal(t, 5, result.RowsStored)
	assert.Equal(t, "run-1", store.runID)
	assert.Equal(t, "memory-1", result.MessageID)
	assert.EqualValues(t, 1, api.cookieCalls.Load())

	for _, code := range []string{"us", "be", "fr"} {
		n, ok := api.leaderCalls.Load(code)
		require.True(t, ok, code)
		assert.EqualValues(t, 1, n.(*atomic.Int32).Load(), code)
	}

	body, contentType, ok := blobs.Object("leaders_data.json")
	require.True(t, ok)
	assert.Equal(t, "application/json; charset=utf-8", contentType)
	decoded, err := export.ReadJSON(strings.NewReader(string(body)))
	require.NoError(t, err)
	assert.Equal(t, []string{"us", "be", "fr"}, decoded.Codes())
	assert.Equal(t, "George Washington led the country.", decoded.Leaders("us")[0].FirstParagraph)
	assert.Empty(t, decoded.Leaders("us")[1].DeathDate)
	assert.Empty(t, decoded.Leaders("fr")[1].FirstParagraph)
	assert.Empty(t, decoded.Leaders("fr")[2].FirstParagraph)
	assert.Empty(t, decoded.Leaders("be"))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "leaders-exported", msgs[0].Topic)
	event, ok := msgs[0].Payload.(RunCompleted)
	require.True(t, ok)
	assert.Equal(t, result.Artifact.URI, event.ArtifactURI)
	assert.Equal(t, result.Artifact.Hash, event.Hash)
	assert.Equal(t, "run-1", msgs[0].Attributes["run_id"])

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"leaders":5`)
}

func TestRunDOMStrategyToCSV(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	blobs := memorystorage.NewBlobStore()
	p := newPipeline(t, api, Config{Strategy: enrich.StrategyDOM, Workers: 1, ExportPath: "leaders.csv"}, Deps{
		Exporter: export.NewExporter(blobs, nil, nil),
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Enriched)
	assert.Equal(t, "Barack Obama was a head of state.", result.Data.Leaders("us")[1].FirstParagraph)
	assert.Empty(t, result.MessageID)

	body, _, ok := blobs.Object("leaders.csv")
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, strings.Join(export.CSVHeader, ","), lines[0])
}

func TestRunFailFastAbortsBeforeExport(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	blobs := memorystorage.NewBlobStore()
	p := newPipeline(t, api, Config{Strategy: enrich.StrategySummary, FailFast: true}, Deps{
		Exporter: export.NewExporter(blobs, nil, nil),
	})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, scraper.IsFetchError(err))
	assert.Empty(t, blobs.Paths())
}

func TestRunCatalogFailureIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cookie" {
			http.SetCookie(w, &http.Cookie{Name: "user_cookie", Value: "x"})
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	blobs := memorystorage.NewBlobStore()
	p, err := New(Config{Session: session.Config{BaseURL: srv.URL}, Workers: 2, ExportPath: "out.json"}, Deps{
		Fetcher:  collyfetcher.New(collyfetcher.Config{Timeout: time.Second}),
		Exporter: export.NewExporter(blobs, nil, nil),
		Clock:    fixedClock{},
		IDs:      &seqIDs{},
	}, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list countries")
	assert.True(t, scraper.IsFetchError(err))
	assert.Empty(t, blobs.Paths())
}

func TestCountries(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	p := newPipeline(t, api, Config{}, Deps{Exporter: export.NewExporter(memorystorage.NewBlobStore(), nil, nil)})

	codes, err := p.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"us", "be", "fr"}, codes)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	exp := export.NewExporter(memorystorage.NewBlobStore(), nil, nil)
	fetcher := collyfetcher.New(collyfetcher.Config{})
	good := Deps{Fetcher: fetcher, Exporter: exp, Clock: fixedClock{}, IDs: &seqIDs{}}
	cfg := Config{Workers: 1, ExportPath: "x.json"}

	_, err := New(cfg, good, nil)
	require.NoError(t, err)

	_, err = New(cfg, Deps{Exporter: exp, Clock: fixedClock{}, IDs: &seqIDs{}}, nil)
	require.Error(t, err)
	_, err = New(cfg, Deps{Fetcher: fetcher, Clock: fixedClock{}, IDs: &seqIDs{}}, nil)
	require.Error(t, err)
	_, err = New(cfg, Deps{Fetcher: fetcher, Exporter: exp}, nil)
	require.Error(t, err)
	_, err = New(Config{ExportPath: "x.json"}, good, nil)
	require.Error(t, err)
	_, err = New(Config{Workers: 1}, good, nil)
	require.Error(t, err)
	_, err = New(Config{Workers: 1, ExportPath: "x.json", Strategy: "guess"}, good, nil)
	require.Error(t, err)
}
