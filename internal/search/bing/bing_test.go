package bing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vin-monitor/internal/search"
)

func newTestClient() *search.Client {
	return search.NewClient(search.ClientConfig{Timeout: time.Second, UserAgent: "vin-monitor/test"}, nil, nil, nil)
}

func TestQueryParsesWebPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("Ocp-Apim-Subscription-Key"))
		q := r.URL.Query()
		assert.Equal(t, `"1HGCM82633A004352"`, q.Get("q"))
		assert.Equal(t, "50", q.Get("count"), "count is capped at 50")
		assert.Equal(t, "false", q.Get("textDecorations"))
		assert.Equal(t, "Raw", q.Get("textFormat"))
		_, _ = w.Write([]byte(`{
			"webPages": {"value": [
				{"name": "2003 Honda Accord", "url": "https://cars.example/1", "snippet": "VIN 1HGCM82633A004352", "dateLastCrawled": "2026-10-01T00:00:00Z"},
				{"name": "missing url"},
				{"url": "https://cars.example/2"}
			]}
		}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "key-123", Endpoint: srv.URL}, newTestClient())
	require.NoError(t, err)
	assert.Equal(t, search.SourceBing, p.Name())

	hits, err := p.Query(context.Background(), "1HGCM82633A004352", search.ExactPhrase("1HGCM82633A004352"), 100)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, search.RawHit{
		Title:         "2003 Honda Accord",
		URL:           "https://cars.example/1",
		Snippet:       "VIN 1HGCM82633A004352",
		Source:        search.SourceBing,
		PublishedDate: "2026-10-01T00:00:00Z",
	}, hits[0])
	assert.Empty(t, hits[1].Title)
}

func TestQueryNoWebPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"_type":"SearchResponse"}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "k", Endpoint: srv.URL}, newTestClient())
	require.NoError(t, err)
	hits, err := p.Query(context.Background(), "X", `"X"`, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQueryPropagatesAuthFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "k", Endpoint: srv.URL}, newTestClient())
	require.NoError(t, err)
	_, err = p.Query(context.Background(), "X", `"X"`, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrUnauthorized))
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, newTestClient())
	assert.Error(t, err)
}
