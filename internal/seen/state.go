// Package seen holds the per-identifier record of result URLs that have
// already been alerted on, and the diff that decides which hits are new.
//
// A URL that enters an identifier's set is never removed: sets only grow, run
// over run. State is not safe for concurrent writers.
package seen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// seenKey is the top-level document key holding the identifier map.
const seenKey = "seen"

// ErrInvalidDocument is returned when a persisted document is not a JSON
// object or its "seen" member is not a map of string lists.
var ErrInvalidDocument = errors.New("seen: invalid state document")

// Set is a set of normalized URLs.
type Set map[string]struct{}

// NewSet builds a Set from urls.
func NewSet(urls ...string) Set {
	s := make(Set, len(urls))
	for _, u := range urls {
		s[u] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Add inserts u.
func (s Set) Add(u string) {
	s[u] = struct{}{}
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for u := range s {
		out[u] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order, the on-disk representation.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// State maps tracked identifiers to their seen sets. Top-level document fields
// other than "seen" are kept verbatim so newer writers' data survives a save.
type State struct {
	sets  map[string]Set
	extra map[string]json.RawMessage
}

// New returns an empty State.
func New() *State {
	return &State{sets: make(map[string]Set)}
}

// Seen returns a copy of the identifier's set (empty if unknown).
func (s *State) Seen(identifier string) Set {
	if set, ok := s.sets[identifier]; ok {
		return set.Clone()
	}
	return Set{}
}

// Commit replaces the identifier's entry with set. It performs no I/O.
func (s *State) Commit(identifier string, set Set) {
	if s.sets == nil {
		s.sets = make(map[string]Set)
	}
	s.sets[identifier] = set.Clone()
}

// Identifiers returns the tracked identifiers present in the state, sorted.
func (s *State) Identifiers() []string {
	out := make([]string, 0, len(s.sets))
	for id := range s.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of identifiers in the state.
func (s *State) Len() int {
	return len(s.sets)
}

// Equal reports whether both states hold the same identifier to URL-set mapping.
func (s *State) Equal(other *State) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id, set := range s.sets {
		o, ok := other.sets[id]
		if !ok || len(o) != len(set) {
			return false
		}
		for u := range set {
			if !o.Has(u) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the state as {"seen": {id: [sorted urls]}, ...extra}.
func (s *State) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.extra)+1)
	for k, v := range s.extra {
		doc[k] = v
	}
	sets := make(map[string][]string, len(s.sets))
	for id, set := range s.sets {
		sets[id] = set.Sorted()
	}
	doc[seenKey] = sets
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a state document. A document without "seen" is valid
// and yields no identifiers.
func (s *State) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return fmt.Errorf("%w: top level must be an object", ErrInvalidDocument)
	}

	sets := make(map[string]Set)
	if raw, ok := doc[seenKey]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		var lists map[string][]string
		if err := json.Unmarshal(raw, &lists); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidDocument, seenKey, err)
		}
		for id, urls := range lists {
			sets[id] = NewSet(urls...)
		}
	}
	delete(doc, seenKey)

	s.sets = sets
	s.extra = doc
	return nil
}

// Decode parses a persisted document.
func Decode(data []byte) (*State, error) {
	s := New()
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode renders the state as indented JSON for storage.
func Encode(s *State) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return append(b, '\n'), nil
}
