// Package storage defines the interface for persisting the seen-set state.
// This abstraction lets the monitor run against a local file, a Google Cloud
// Storage object or a Postgres table without changing the reconciliation logic.
package storage

import (
	"context"
	"errors"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// ErrCorruptState marks a stored document that exists but cannot be decoded.
var ErrCorruptState = errors.New("storage: corrupt state")

// Store loads and saves the whole persisted state.
type Store interface {
	// Load returns the persisted state. It always returns a usable, non-nil
	// state: when the backing data is missing the state is empty and the error
	// is nil; when it is unreadable or invalid the state is empty and the
	// error describes what was discarded. Callers log the error and continue,
	// accepting that every hit of the run will look new.
	Load(ctx context.Context) (*seen.State, error)

	// Save durably replaces the persisted state. A reader never observes a
	// partially written state.
	Save(ctx context.Context, state *seen.State) error

	// Close releases backend resources.
	Close() error

	// Describe names the backend location for logs.
	Describe() string
}

// NoOpStore discards saves and always loads an empty state. It backs dry runs
// that must not touch real storage.
type NoOpStore struct{}

// Load returns an empty state.
func (NoOpStore) Load(context.Context) (*seen.State, error) { return seen.New(), nil }

// Save does nothing.
func (NoOpStore) Save(context.Context, *seen.State) error { return nil }

// Close does nothing.
func (NoOpStore) Close() error { return nil }

// Describe implements Store.
func (NoOpStore) Describe() string { return "noop://" }
