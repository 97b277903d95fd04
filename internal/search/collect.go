package search

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Outcome records what a single provider contributed for one identifier.
type Outcome struct {
	Provider Source
	Hits     int
	Duration time.Duration
	Err      error
}

// Collect queries every provider in order and concatenates their hits. A
// provider that fails is logged and contributes nothing; Collect itself never
// fails. No cross-provider dedup happens here.
func Collect(
	ctx context.Context,
	providers []Provider,
	identifier string,
	limit int,
	logger *zap.Logger,
) ([]RawHit, []Outcome) {
	if logger == nil {
		logger = zap.NewNop()
	}
	phrase := ExactPhrase(identifier)

	var hits []RawHit
	outcomes := make([]Outcome, 0, len(providers))
	for _, p := range providers {
		start := time.Now()
		got, err := p.Query(ctx, identifier, phrase, limit)
		out := Outcome{Provider: p.Name(), Duration: time.Since(start)}
		if err != nil {
			out.Err = err
			logger.Warn("search provider failed",
				zap.String("provider", string(p.Name())),
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			outcomes = append(outcomes, out)
			continue
		}
		out.Hits = len(got)
		hits = append(hits, got...)
		outcomes = append(outcomes, out)
	}
	return hits, outcomes
}
