package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/graphrag/internal/config"
	"github.com/hyperjump/graphrag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tavilyBody = `{
  "answer": "Go is a programming language.",
  "results": [
    {"title": "The Go Programming Language", "url": "https://go.dev", "content": "Build simple, secure, scalable systems."},
    {"title": "Go (language) - Wikipedia", "url": "https://en.wikipedia.org/wiki/Go", "content": "Go is statically typed."}
  ]
}`

const serperBody = `{
  "organic": [
    {"title": "Go", "link": "https://go.dev", "snippet": "Official site"}
  ],
  "relatedSearches": [
    {"query": "golang tutorial"},
    {"query": "go vs rust"}
  ]
}`

type capturedRequest struct {
	Path  string
	Query string
	Body  map[string]interface{}
}

func fakeAPI(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Query = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&captured.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestTavilyProvider_Search(t *testing.T) {
	srv, captured := fakeAPI(t, http.StatusOK, tavilyBody)
	p := NewTavilyProvider(ProviderOptions{APIKey: "tvly-key", BaseURL: srv.URL})

	results, err := p.Search(context.Background(), "what is go")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Summary Answer", results[0].Title)
	assert.Empty(t, results[0].URL)
	assert.Equal(t, "Go is a programming language.", results[0].Content)
	assert.Equal(t, "https://go.dev", results[1].URL)
	for _, r := range results {
		assert.Equal(t, models.ProviderTavily, r.Source)
	}

	assert.Equal(t, "/search", captured.Path)
	assert.Equal(t, "tvly-key", captured.Body["api_key"])
	assert.Equal(t, "what is go", captured.Body["query"])
	assert.Equal(t, true, captured.Body["include_answer"])
	assert.Equal(t, float64(10), captured.Body["max_results"])
}

func TestTavilyProvider_NoAnswer(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"answer": "", "results": [{"title": "a", "url": "https://a", "content": "c"}]}`)
	p := NewTavilyProvider(ProviderOptions{BaseURL: srv.URL})
	results, err := p.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Title)
}

func TestSerperProvider_Search(t *testing.T) {
	srv, captured := fakeAPI(t, http.StatusOK, serperBody)
	p := NewSerperProvider(ProviderOptions{APIKey: "serper key", BaseURL: srv.URL + "/", MaxResults: 5})

	results, err := p.Search(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.SearchResult{Title: "Go", URL: "https://go.dev", Content: "Official site", Source: models.ProviderSerper}, results[0])
	assert.Equal(t, models.SearchResult{Title: "Related: golang tutorial", Content: "golang tutorial", Source: models.ProviderSerper}, results[1])
	assert.Equal(t, "Related: go vs rust", results[2].Title)

	assert.Equal(t, "/search", captured.Path)
	assert.Equal(t, "key=serper+key", captured.Query)
	assert.Equal(t, "golang", captured.Body["q"])
	assert.Equal(t, "US", captured.Body["gl"])
	assert.Equal(t, float64(5), captured.Body["num"])
}

func TestProvider_UpstreamError(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusUnauthorized, `{"detail":"invalid api key"}`)
	p := NewTavilyProvider(ProviderOptions{BaseURL: srv.URL})

	_, err := p.Search(context.Background(), "q")
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream), "expected *UpstreamError, got %T", err)
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
	assert.Contains(t, upstream.Body, "invalid api key")
	assert.Equal(t, `tavily API error: 401 - {"detail":"invalid api key"}`, err.Error())
}

func TestProvider_MalformedBody(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `not json`)
	p := NewSerperProvider(ProviderOptions{BaseURL: srv.URL})
	_, err := p.Search(context.Background(), "q")
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.True(t, strings.HasPrefix(upstream.Body, "invalid response body"))
}

func TestProvider_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	p := NewTavilyProvider(ProviderOptions{BaseURL: srv.URL, Client: &http.Client{Timeout: 20 * time.Millisecond}})

	_, err := p.Search(context.Background(), "q")
	var transport *TransportError
	require.True(t, errors.As(err, &transport), "expected *TransportError, got %T", err)
	assert.Equal(t, models.ProviderTavily, transport.Provider)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestSerperProvider_TransportErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	p := NewSerperProvider(ProviderOptions{
		APIKey:  "SECRET-KEY-123",
		BaseURL: srv.URL,
		Client:  &http.Client{Timeout: 20 * time.Millisecond},
	})

	_, err := p.Search(context.Background(), "q")
	require.Error(t, err)
	var transport *TransportError
	require.True(t, errors.As(err, &transport), "expected *TransportError, got %T", err)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")
	assert.Contains(t, err.Error(), "key=REDACTED")

	var uerr *url.Error
	require.True(t, errors.As(err, &uerr))
	assert.True(t, uerr.Timeout(), "timeout classification must survive redaction")
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"key param", "https://google.serper.dev/search?key=abc", "https://google.serper.dev/search?key=REDACTED"},
		{"api_key param", "https://api.example.com/x?api_key=abc&q=go", "https://api.example.com/x?api_key=REDACTED&q=go"},
		{"no secrets", "https://api.tavily.com/search", "https://api.tavily.com/search"},
		{"other params untouched", "https://x.test/s?q=a+b", "https://x.test/s?q=a+b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redactURL(tt.raw))
		})
	}
}

type staticProvider struct {
	name    models.Provider
	results []models.SearchResult
	err     error
	calls   int
}

func (p *staticProvider) Name() models.Provider { return p.name }

func (p *staticProvider) Search(_ context.Context, _ string) ([]models.SearchResult, error) {
	p.calls++
	return p.results, p.err
}

func sampleResults(source models.Provider, n int) []models.SearchResult {
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = models.SearchResult{
			Title:   string(source) + " result " + string(rune('a'+i)),
			URL:     "https://example.com/" + string(rune('a'+i)),
			Content: "content",
			Source:  source,
		}
	}
	return out
}

func TestService_ProviderSelection(t *testing.T) {
	tavily := &staticProvider{name: models.ProviderTavily, results: sampleResults(models.ProviderTavily, 2)}
	serper := &staticProvider{name: models.ProviderSerper, results: sampleResults(models.ProviderSerper, 3)}
	svc := NewService([]Provider{tavily, serper})

	tests := []struct {
		tag  string
		want models.Provider
	}{
		{"", models.ProviderTavily},
		{"tavily", models.ProviderTavily},
		{"SERPER", models.ProviderSerper},
		{"duckduckgo", models.ProviderTavily},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			results, err := svc.Search(context.Background(), "q", tt.tag)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, tt.want, results[0].Source)
		})
	}
}

func TestService_MissingProvider(t *testing.T) {
	svc := NewService([]Provider{&staticProvider{name: models.ProviderSerper}})
	_, err := svc.Search(context.Background(), "q", "tavily")
	assert.Error(t, err)
}

func TestService_SearchStreamingMatchesSearch(t *testing.T) {
	for _, tag := range []string{"tavily", "serper", "unknown"} {
		t.Run(tag, func(t *testing.T) {
			svc := NewService([]Provider{
				&staticProvider{name: models.ProviderTavily, results: sampleResults(models.ProviderTavily, 4)},
				&staticProvider{name: models.ProviderSerper, results: sampleResults(models.ProviderSerper, 6)},
			}, WithPacing(Pacing{}))

			full, err := svc.Search(context.Background(), "q", tag)
			require.NoError(t, err)

			var streamed []models.SearchResult
			err = svc.SearchStreaming(context.Background(), "q", tag, func(r models.SearchResult) error {
				streamed = append(streamed, r)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, full, streamed)
		})
	}
}

func TestService_SearchStreamingPacing(t *testing.T) {
	svc := NewService([]Provider{
		&staticProvider{name: models.ProviderTavily, results: sampleResults(models.ProviderTavily, 4)},
	}, WithPacing(Pacing{Base: 100 * time.Millisecond, Step: 50 * time.Millisecond}))
	var waits []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	calls := 0
	err := svc.SearchStreaming(context.Background(), "q", "", func(models.SearchResult) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 200 * time.Millisecond}, waits)
}

func TestService_SearchStreamingCallbackError(t *testing.T) {
	svc := NewService([]Provider{
		&staticProvider{name: models.ProviderTavily, results: sampleResults(models.ProviderTavily, 5)},
	}, WithPacing(Pacing{}))
	stop := errors.New("client went away")
	calls := 0
	err := svc.SearchStreaming(context.Background(), "q", "", func(models.SearchResult) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestService_SearchStreamingProviderError(t *testing.T) {
	upstream := &UpstreamError{Provider: models.ProviderSerper, Status: 500, Body: "boom"}
	svc := NewService([]Provider{&staticProvider{name: models.ProviderSerper, err: upstream}})
	called := false
	err := svc.SearchStreaming(context.Background(), "q", "serper", func(models.SearchResult) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, upstream)
	assert.False(t, called)
}

func TestService_SearchStreamingContextCancel(t *testing.T) {
	svc := NewService([]Provider{
		&staticProvider{name: models.ProviderTavily, results: sampleResults(models.ProviderTavily, 3)},
	}, WithPacing(Pacing{Base: time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := svc.SearchStreaming(ctx, "q", "", func(models.SearchResult) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPacing_Delay(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, DefaultPacing.Delay(0))
	assert.Equal(t, 350*time.Millisecond, DefaultPacing.Delay(5))
	assert.Equal(t, time.Duration(0), Pacing{}.Delay(3))
}

func TestNewServiceFromConfig(t *testing.T) {
	tavilySrv, _ := fakeAPI(t, http.StatusOK, tavilyBody)
	serperSrv, serperReq := fakeAPI(t, http.StatusOK, serperBody)
	cfg := &config.SearchConfig{
		Tavily:            config.ProviderConfig{APIKey: "t", BaseURL: tavilySrv.URL},
		Serper:            config.ProviderConfig{APIKey: "s", BaseURL: serperSrv.URL},
		MaxResults:        7,
		Timeout:           time.Second,
		RequestsPerMinute: 600,
	}
	svc := NewServiceFromConfig(cfg)

	results, err := svc.Search(context.Background(), "q", "tavily")
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = svc.Search(context.Background(), "q", "serper")
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "key=s", serperReq.Query)
	assert.Equal(t, float64(7), serperReq.Body["num"])
}
