package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vin-monitor/internal/search"
)

func TestQueryParsesItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "api-key", q.Get("key"))
		assert.Equal(t, "engine", q.Get("cx"))
		assert.Equal(t, `"5YJSA1E26HF000001"`, q.Get("q"))
		assert.Equal(t, "10", q.Get("num"), "num is capped at 10")
		_, _ = w.Write([]byte(`{
			"items": [
				{"title": "Salvage auction", "link": "https://auction.example/lot/9", "snippet": "lot 9",
				 "pagemap": {"metatags": [{"article:published_time": "2026-09-30"}]}},
				{"title": "No metatags", "link": "https://forum.example/t/1"},
				{"title": "No link"}
			]
		}`))
	}))
	defer srv.Close()

	client := search.NewClient(search.ClientConfig{Timeout: time.Second}, nil, nil, nil)
	p, err := New(Config{APIKey: "api-key", EngineID: "engine", Endpoint: srv.URL}, client)
	require.NoError(t, err)
	assert.Equal(t, search.SourceGoogleCSE, p.Name())

	hits, err := p.Query(context.Background(), "5YJSA1E26HF000001", search.ExactPhrase("5YJSA1E26HF000001"), 25)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://auction.example/lot/9", hits[0].URL)
	assert.Equal(t, "2026-09-30", hits[0].PublishedDate)
	assert.Equal(t, search.SourceGoogleCSE, hits[0].Source)
	assert.Empty(t, hits[1].PublishedDate)
}

func TestQueryEmptyItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items": null}`))
	}))
	defer srv.Close()

	client := search.NewClient(search.ClientConfig{Timeout: time.Second}, nil, nil, nil)
	p, err := New(Config{APIKey: "k", EngineID: "cx", Endpoint: srv.URL}, client)
	require.NoError(t, err)

	hits, err := p.Query(context.Background(), "X", `"X"`, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	client := search.NewClient(search.ClientConfig{}, nil, nil, nil)
	_, err := New(Config{APIKey: "k"}, client)
	assert.Error(t, err)
	_, err = New(Config{EngineID: "cx"}, client)
	assert.Error(t, err)
}

func TestPublishedTime(t *testing.T) {
	t.Parallel()

	assert.Empty(t, publishedTime(nil))
	assert.Empty(t, publishedTime([]map[string]any{{"og:title": "x"}}))
	assert.Empty(t, publishedTime([]map[string]any{{"article:published_time": 12}}))
	assert.Equal(t, "2026", publishedTime([]map[string]any{{"article:published_time": "2026"}}))
}
