package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/vin-monitor/internal/seen"
	statestore "github.com/JakeFAU/vin-monitor/internal/storage"
)

// fakeBucket answers object downloads with a fixed payload and records uploads.
type fakeBucket struct {
	mu         sync.Mutex
	getStatus  int
	getBody    string
	putStatus  int
	uploads    []string
	uploadPath string
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		f.uploadPath = r.URL.Path
		if f.putStatus != 0 {
			w.WriteHeader(f.putStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"test-bucket","name":"vinmonitor/state.json"}`)
		return
	}

	if !strings.HasSuffix(r.URL.Path, "state.json") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.getStatus != 0 {
		w.WriteHeader(f.getStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, f.getBody)
}

func newTestStore(t *testing.T, handler http.Handler) *StateStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = New(client, Config{Bucket: "  "})
	assert.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "gs://b/"+DefaultObject, store.Describe())
	assert.NoError(t, store.Close(), "borrowed clients are not closed")
}

func TestLoadMissingObjectIsEmpty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{getStatus: http.StatusNotFound})
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Zero(t, st.Len())
}

func TestLoadDecodesObject(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{getBody: `{"seen": {"VIN": ["https://a.example/1"]}}`})
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Seen("VIN").Has("https://a.example/1"))
}

func TestLoadCorruptObject(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{getBody: `[1, 2, 3]`})
	st, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, statestore.ErrCorruptState))
	assert.Zero(t, st.Len())
}

func TestLoadForbidden(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{getStatus: http.StatusForbidden})
	st, err := store.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, statestore.ErrCorruptState))
	require.NotNil(t, st)
}

func TestSaveUploadsDocument(t *testing.T) {
	t.Parallel()

	bucket := &fakeBucket{}
	store := newTestStore(t, bucket)

	st := seen.New()
	st.Commit("VIN", seen.NewSet("https://a.example/1"))
	require.NoError(t, store.Save(context.Background(), st))

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	require.Len(t, bucket.uploads, 1)
	assert.Contains(t, bucket.uploadPath, "/b/test-bucket/o")
	assert.Contains(t, bucket.uploads[0], `"https://a.example/1"`)
}

func TestSaveError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{putStatus: http.StatusForbidden})
	err := store.Save(context.Background(), seen.New())
	assert.Error(t, err)
}
