package seen

import (
	"github.com/JakeFAU/vin-monitor/internal/search"
	"github.com/JakeFAU/vin-monitor/internal/urlnorm"
)

// NewHit is a hit whose normalized URL was not in the seen set at diff time.
type NewHit struct {
	URL string
	Hit search.RawHit
}

// Diff normalizes every hit URL and splits the batch into already-seen and
// new. It returns the new hits in first-occurrence order (one per normalized
// URL) and the identifier's seen set with every hit URL merged in. The state
// is not modified; pass the returned set to Commit.
//
// The resulting set and the set of new URLs do not depend on hit order.
func Diff(state *State, identifier string, hits []search.RawHit) ([]NewHit, Set) {
	updated := state.Seen(identifier)
	var fresh []NewHit
	for _, h := range hits {
		key := urlnorm.Normalize(h.URL)
		if updated.Has(key) {
			continue
		}
		updated.Add(key)
		fresh = append(fresh, NewHit{URL: key, Hit: h})
	}
	return fresh, updated
}
