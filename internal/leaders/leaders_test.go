package leaders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/country-leaders-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
	"github.com/JakeFAU/country-leaders-scraper/internal/session"
)

func TestListCountriesDedupes(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.responses["/countries"] = `["us"," be","fr","us",""]`

	codes, err := NewCatalog(client, Config{}, zap.NewNop()).ListCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"us", "be", "fr"}, codes)
}

func TestListCountriesFailsFast(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.err = &scraper.FetchError{URL: "https://api/countries", StatusCode: http.StatusForbidden}

	_, err := NewCatalog(client, Config{}, nil).ListCountries(context.Background())
	require.Error(t, err)
	assert.True(t, scraper.IsFetchError(err))
}

func TestListAllLeadersCallsEachCountryOnce(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.responses["/leaders?country=us"] = `[{"id":"Q23","first_name":"George","last_name":"Washington","death_date":"1799-12-14"},{"id":"Q11812","first_name":"Thomas","last_name":"Jefferson"}]`
	client.responses["/leaders?country=be"] = `[{"id":"Q12978","first_name":"Guy","last_name":"Verhofstadt","death_date":null}]`
	client.responses["/leaders?country=ma"] = `[]`

	codes := []string{"us", "be", "ma"}
	data, err := NewFetcher(client, Config{}, zap.NewNop()).ListAllLeaders(context.Background(), codes)
	require.NoError(t, err)

	assert.Equal(t, codes, data.Codes())
	for _, code := range codes {
		assert.Equal(t, 1, client.calls["/leaders?country="+code], "country %s", code)
	}
	assert.Len(t, client.calls, len(codes))

	us := data.Leaders("us")
	require.Len(t, us, 2)
	assert.Equal(t, "Q23", us[0].ID)
	assert.Equal(t, "Q11812", us[1].ID)
	assert.Empty(t, data.Leaders("be")[0].DeathDate)
	assert.NotNil(t, data.Leaders("ma"))
	assert.Empty(t, data.Leaders("ma"))
}

func TestListAllLeadersStopsOnError(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.responses["/leaders?country=us"] = `[]`
	client.failOn = "/leaders?country=be"

	_, err := NewFetcher(client, Config{}, nil).ListAllLeaders(context.Background(), []string{"us", "be", "fr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list leaders for be")
	assert.Zero(t, client.calls["/leaders?country=fr"])
}

func TestListAllLeadersOverHTTP(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "user_cookie", Value: "c1"})
	})
	mux.HandleFunc("/countries", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("user_cookie"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode([]string{"fr", "be"})
	})
	mux.HandleFunc("/leaders", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("user_cookie"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		code := r.URL.Query().Get("country")
		mu.Lock()
		calls[code]++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode([]scraper.Leader{{ID: "Q-" + code, LastName: code}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: time.Second})
	sess, err := session.Open(ctx, fetcher, session.Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	codes, err := NewCatalog(sess, Config{}, nil).ListCountries(ctx)
	require.NoError(t, err)
	data, err := NewFetcher(sess, Config{}, nil).ListAllLeaders(ctx, codes)
	require.NoError(t, err)

	assert.Equal(t, []string{"fr", "be"}, data.Codes())
	assert.Equal(t, "Q-be", data.Leaders("be")[0].ID)
	mu.Lock()
	assert.Equal(t, map[string]int{"fr": 1, "be": 1}, calls)
	mu.Unlock()
}

type fakeClient struct {
	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
	failOn    string
	err       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		responses: map[string]string{},
		calls:     map[string]int{},
	}
}

func (c *fakeClient) GetJSON(_ context.Context, endpoint string, params url.Values, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := endpoint
	if len(params) > 0 {
		key += "?" + params.Encode()
	}
	c.calls[key]++
	if c.err != nil {
		return c.err
	}
	if key == c.failOn {
		return &scraper.FetchError{URL: key, Err: errors.New("connection reset")}
	}
	body, ok := c.responses[key]
	if !ok {
		return &scraper.FetchError{URL: key, StatusCode: http.StatusNotFound}
	}
	return json.Unmarshal([]byte(body), out)
}
