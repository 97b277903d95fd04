// Package memory keeps the seen-set state in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// StateStore holds an encoded snapshot so that loads return independent
// copies, mirroring the behavior of the durable backends.
type StateStore struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

// NewStateStore creates an empty in-memory store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// Load implements storage.Store.
func (s *StateStore) Load(_ context.Context) (*seen.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return seen.New(), nil
	}
	st, err := seen.Decode(s.data)
	if err != nil {
		return seen.New(), fmt.Errorf("decode in-memory state: %w", err)
	}
	return st, nil
}

// Save implements storage.Store.
func (s *StateStore) Save(_ context.Context, state *seen.State) error {
	data, err := seen.Encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *StateStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close implements storage.Store.
func (s *StateStore) Close() error {
	return nil
}

// Describe implements storage.Store.
func (s *StateStore) Describe() string {
	return "memory://"
}
