// Package google queries the Google Programmable Search (Custom Search JSON) API.
package google

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/vin-monitor/internal/search"
)

// DefaultEndpoint is the public Custom Search JSON API endpoint.
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// maxNum is the most results the API returns per call.
const maxNum = 10

// Config captures the CSE credentials and endpoint.
type Config struct {
	APIKey   string
	EngineID string
	Endpoint string
}

// Provider implements search.Provider against Google CSE.
type Provider struct {
	client   *search.Client
	apiKey   string
	engineID string
	endpoint string
}

type response struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Pagemap struct {
			Metatags []map[string]any `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
}

// New creates a Google CSE provider. Both the API key and engine ID are required.
func New(cfg Config, client *search.Client) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.EngineID) == "" {
		return nil, fmt.Errorf("google: api key and engine id are required")
	}
	if client == nil {
		return nil, fmt.Errorf("google: client is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{client: client, apiKey: cfg.APIKey, engineID: cfg.EngineID, endpoint: endpoint}, nil
}

// Name implements search.Provider.
func (p *Provider) Name() search.Source {
	return search.SourceGoogleCSE
}

// Query implements search.Provider.
func (p *Provider) Query(ctx context.Context, _ string, phrase string, limit int) ([]search.RawHit, error) {
	num := min(limit, maxNum)
	if num <= 0 {
		return nil, nil
	}
	params := url.Values{
		"key": {p.apiKey},
		"cx":  {p.engineID},
		"q":   {phrase},
		"num": {strconv.Itoa(num)},
	}

	var resp response
	if err := p.client.GetJSON(ctx, search.SourceGoogleCSE, p.endpoint, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	hits := make([]search.RawHit, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Link == "" {
			continue
		}
		hits = append(hits, search.RawHit{
			Title:         it.Title,
			URL:           it.Link,
			Snippet:       it.Snippet,
			Source:        search.SourceGoogleCSE,
			PublishedDate: publishedTime(it.Pagemap.Metatags),
		})
	}
	return hits, nil
}

// publishedTime reads article:published_time from the first metatag block.
func publishedTime(metatags []map[string]any) string {
	if len(metatags) == 0 {
		return ""
	}
	s, _ := metatags[0]["article:published_time"].(string)
	return s
}
