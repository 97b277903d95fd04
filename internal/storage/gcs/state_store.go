// Package gcs persists the seen-set state as a single Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/vin-monitor/internal/seen"
	statestore "github.com/JakeFAU/vin-monitor/internal/storage"
)

// DefaultObject is the object name used when none is configured.
const DefaultObject = "vinmonitor/state.json"

const maxStateBytes = 64 << 20

// Config captures the parameters required to locate the state object.
type Config struct {
	Bucket string
	Object string
}

// StateStore reads and writes one JSON object. GCS only makes an object
// visible once its upload is finalized, so readers never see a partial write.
type StateStore struct {
	client    *storage.Client
	bucket    string
	object    string
	ownClient bool
}

// New creates a GCS-backed state store around an existing client.
func New(client *storage.Client, cfg Config) (*StateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	object := strings.TrimSpace(cfg.Object)
	if object == "" {
		object = DefaultObject
	}
	return &StateStore{client: client, bucket: cfg.Bucket, object: object}, nil
}

// Open creates a client using Application Default Credentials and wraps it.
// The returned store owns the client and closes it on Close.
func Open(ctx context.Context, cfg Config) (*StateStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	s, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.ownClient = true
	return s, nil
}

// Describe implements storage.Store.
func (s *StateStore) Describe() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Load implements storage.Store. A missing object is an empty state without error.
func (s *StateStore) Load(ctx context.Context) (*seen.State, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return seen.New(), nil
	}
	if err != nil {
		return seen.New(), fmt.Errorf("open state object %s: %w", s.Describe(), err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(io.LimitReader(r, maxStateBytes))
	if err != nil {
		return seen.New(), fmt.Errorf("read state object %s: %w", s.Describe(), err)
	}
	st, err := seen.Decode(data)
	if err != nil {
		return seen.New(), fmt.Errorf("%w: %s: %v", statestore.ErrCorruptState, s.Describe(), err)
	}
	return st, nil
}

// Save implements storage.Store.
func (s *StateStore) Save(ctx context.Context, state *seen.State) error {
	data, err := seen.Encode(state)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write state object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write state object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close implements storage.Store.
func (s *StateStore) Close() error {
	if !s.ownClient {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
