// Package bing queries the Bing Web Search API (v7).
package bing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/vin-monitor/internal/search"
)

// DefaultEndpoint is the public Bing Web Search v7 endpoint.
const DefaultEndpoint = "https://api.bing.microsoft.com/v7.0/search"

// maxCount is the largest page size the API accepts.
const maxCount = 50

// Config captures the Bing credentials and endpoint.
type Config struct {
	APIKey   string
	Endpoint string
}

// Provider implements search.Provider against Bing.
type Provider struct {
	client   *search.Client
	apiKey   string
	endpoint string
}

type response struct {
	WebPages struct {
		Value []struct {
			Name            string `json:"name"`
			URL             string `json:"url"`
			Snippet         string `json:"snippet"`
			DateLastCrawled string `json:"dateLastCrawled"`
		} `json:"value"`
	} `json:"webPages"`
}

// New creates a Bing provider. The API key is required.
func New(cfg Config, client *search.Client) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("bing: api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("bing: client is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{client: client, apiKey: cfg.APIKey, endpoint: endpoint}, nil
}

// Name implements search.Provider.
func (p *Provider) Name() search.Source {
	return search.SourceBing
}

// Query implements search.Provider.
func (p *Provider) Query(ctx context.Context, _ string, phrase string, limit int) ([]search.RawHit, error) {
	count := min(limit, maxCount)
	if count <= 0 {
		return nil, nil
	}
	params := url.Values{
		"q":               {phrase},
		"count":           {strconv.Itoa(count)},
		"textDecorations": {"false"},
		"textFormat":      {"Raw"},
	}
	header := http.Header{"Ocp-Apim-Subscription-Key": {p.apiKey}}

	var resp response
	if err := p.client.GetJSON(ctx, search.SourceBing, p.endpoint, params, header, &resp); err != nil {
		return nil, fmt.Errorf("bing: %w", err)
	}

	hits := make([]search.RawHit, 0, len(resp.WebPages.Value))
	for _, v := range resp.WebPages.Value {
		if v.URL == "" {
			continue
		}
		hits = append(hits, search.RawHit{
			Title:         v.Name,
			URL:           v.URL,
			Snippet:       v.Snippet,
			Source:        search.SourceBing,
			PublishedDate: v.DateLastCrawled,
		})
	}
	return hits, nil
}
