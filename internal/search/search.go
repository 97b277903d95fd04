// Package search defines the provider abstraction used to look up exact-phrase
// mentions of tracked identifiers, plus the shared HTTP plumbing the concrete
// providers build on.
package search

import (
	"context"
	"errors"
)

// Source names the provider a hit came from.
type Source string

// Known providers.
const (
	SourceBing      Source = "bing"
	SourceGoogleCSE Source = "google_cse"
)

// Sentinel errors returned by providers. They are informational only: the
// monitor treats every provider error the same way.
var (
	ErrUnauthorized = errors.New("search: unauthorized")
	ErrRateLimited  = errors.New("search: rate limited")
	ErrUpstream     = errors.New("search: upstream error")
	ErrBadResponse  = errors.New("search: malformed response")
)

// RawHit is one search result as returned by a provider.
type RawHit struct {
	Title         string `json:"title,omitempty"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet,omitempty"`
	Source        Source `json:"source"`
	PublishedDate string `json:"published_date,omitempty"`
}

// Provider is implemented by every search backend.
type Provider interface {
	// Name identifies the provider in hits, logs and metrics.
	Name() Source
	// Query returns up to limit hits for the exact phrase. identifier is the
	// unquoted tracked value, passed along for logging.
	Query(ctx context.Context, identifier, phrase string, limit int) ([]RawHit, error)
}

// ExactPhrase wraps the identifier in quotation marks so providers match it
// literally instead of tokenizing it.
func ExactPhrase(identifier string) string {
	return `"` + identifier + `"`
}
