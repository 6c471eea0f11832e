package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/embeddings"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider embeds text deterministically into 4 dimensions by letter
// counts, so identical texts always score highest.
type fakeProvider struct {
	err error
}

func (p *fakeProvider) embed(text string) []float32 {
	v := []float32{1, 0, 0, 0}
	for _, r := range text {
		v[int(r)%4] += 1
	}
	return v
}

func (p *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.embed(text), nil
}

func (p *fakeProvider) Dimension() int { return 4 }
func (p *fakeProvider) Close() error   { return nil }

func newTestConnector(t *testing.T, cfg Config) (*Connector, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 4,
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	conn, err := NewConnector(store, &fakeProvider{}, cfg, logging.NewNop())
	require.NoError(t, err)
	return conn, store
}

func TestNewConnector_Validation(t *testing.T) {
	_, err := NewConnector(nil, &fakeProvider{}, Config{}, nil)
	assert.Error(t, err)

	_, err = NewConnector(&scriptedStore{}, nil, Config{}, nil)
	assert.Error(t, err)

	conn, err := NewConnector(&scriptedStore{}, &fakeProvider{}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchLimit, conn.config.SearchLimit)
}

func TestConnector_StoreCreatesCollection(t *testing.T) {
	conn, store := newTestConnector(t, Config{})
	ctx := context.Background()

	require.NoError(t, conn.Store(ctx, Entry{Content: "hello"}, "notes"))

	names, err := conn.ListCollectionNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, names)

	// The collection was sized by the provider: a 3-dimension point is rejected.
	err = store.Upsert(ctx, "notes", []vectorstore.Point{{ID: "x", Vector: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, vectorstore.ErrStorageUnavailable)

	entries, err := conn.Search(ctx, "hello", "notes", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "hello", entries[0].Content)
}

func TestConnector_StoreWithoutCollection(t *testing.T) {
	conn, _ := newTestConnector(t, Config{})

	err := conn.Store(context.Background(), Entry{Content: "orphan"}, "")
	assert.ErrorIs(t, err, ErrNoCollection)
}

func TestConnector_DefaultCollection(t *testing.T) {
	conn, _ := newTestConnector(t, Config{DefaultCollection: "default-notes"})
	ctx := context.Background()

	require.NoError(t, conn.Store(ctx, Entry{Content: "uses the default"}, ""))
	assert.Equal(t, "default-notes", conn.DefaultCollection())

	entries, err := conn.Search(ctx, "uses the default", "", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "uses the default", entries[0].Content)

	// An explicit name wins over the default.
	entries, err = conn.Search(ctx, "uses the default", "other", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConnector_SearchMissingCollection(t *testing.T) {
	conn, _ := newTestConnector(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name       string
		collection string
	}{
		{name: "never created", collection: "ghost"},
		{name: "unresolved", collection: ""},
		{name: "invalid characters", collection: "team/notes"},
		{name: "name too long", collection: strings.Repeat("n", 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := conn.Search(ctx, "anything", tt.collection, 5)
			require.NoError(t, err)
			assert.NotNil(t, entries)
			assert.Empty(t, entries)

			entries, err = conn.SearchByMetadata(ctx, "status", "open", tt.collection, 5)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestConnector_SearchLimit(t *testing.T) {
	conn, _ := newTestConnector(t, Config{SearchLimit: 3})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, conn.Store(ctx, Entry{Content: fmt.Sprintf("note %d", i)}, "notes"))
	}

	entries, err := conn.Search(ctx, "note", "notes", 5)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	entries, err = conn.Search(ctx, "note", "notes", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "non-positive limit falls back to the configured limit")
}

func TestConnector_SearchByMetadata(t *testing.T) {
	conn, _ := newTestConnector(t, Config{})
	ctx := context.Background()

	require.NoError(t, conn.Store(ctx, Entry{
		Content:  "fix the login bug",
		Metadata: map[string]any{"status": "open", "priority": 2},
	}, "notes"))
	require.NoError(t, conn.Store(ctx, Entry{
		Content:  "ship release notes",
		Metadata: map[string]any{"status": "done"},
	}, "notes"))

	entries, err := conn.SearchByMetadata(ctx, "status", "open", "notes", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fix the login bug", entries[0].Content)
	assert.Equal(t, "open", entries[0].Metadata["status"])
	assert.Equal(t, int64(2), entries[0].Metadata["priority"])

	entries, err = conn.SearchByMetadata(ctx, "status", "pending", "notes", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConnector_PromotedFieldsRoundTrip(t *testing.T) {
	conn, _ := newTestConnector(t, Config{})
	ctx := context.Background()

	require.NoError(t, conn.Store(ctx, Entry{
		Content: "Go memory model",
		Title:   "The Go Memory Model",
		Metadata: map[string]any{
			"docAuthor": "The Go Authors",
			"url":       "https://go.dev/ref/mem",
			"wordCount": 4200,
		},
	}, "docs"))

	entries, err := conn.SearchByMetadata(ctx, "author", "The Go Authors", "docs", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "Go memory model", e.Content)
	assert.Equal(t, "The Go Memory Model", e.Title)
	assert.Equal(t, "The Go Authors", e.Author)
	assert.Equal(t, "https://go.dev/ref/mem", e.URL)
	assert.Equal(t, 4200, e.WordCount)
	assert.NotContains(t, e.Metadata, "docAuthor")
}

func TestConnector_EmbeddingFailure(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir(), VectorSize: 4}, logging.NewNop())
	require.NoError(t, err)
	provider := &fakeProvider{}
	conn, err := NewConnector(store, provider, Config{}, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, conn.Store(ctx, Entry{Content: "seed"}, "notes"))

	provider.err = fmt.Errorf("%w: backend down", embeddings.ErrEmbeddingFailed)

	err = conn.Store(ctx, Entry{Content: "lost"}, "notes")
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)

	_, err = conn.Search(ctx, "seed", "notes", 5)
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)

	// Metadata search does not embed.
	_, err = conn.SearchByMetadata(ctx, "k", "v", "notes", 5)
	assert.NoError(t, err)
}

func TestConnector_ConcurrentStores(t *testing.T) {
	conn, _ := newTestConnector(t, Config{DefaultCollection: "notes"})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- conn.Store(ctx, Entry{
				Content:  fmt.Sprintf("concurrent %d", i),
				Metadata: map[string]any{"batch": "a"},
			}, "")
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	entries, err := conn.SearchByMetadata(ctx, "batch", "a", "", 20)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

// scriptedStore is a Store whose collection calls follow a script.
type scriptedStore struct {
	vectorstore.Store

	existsResults []bool
	existsErr     error
	createErr     error
	upsertErr     error

	existsCalls int
	created     []string
	upserted    []vectorstore.Point
}

func (s *scriptedStore) CollectionExists(context.Context, string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	i := s.existsCalls
	s.existsCalls++
	if i < len(s.existsResults) {
		return s.existsResults[i], nil
	}
	return true, nil
}

func (s *scriptedStore) CreateCollection(_ context.Context, name string, _ int) error {
	s.created = append(s.created, name)
	return s.createErr
}

func (s *scriptedStore) Upsert(_ context.Context, _ string, points []vectorstore.Point) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, points...)
	return nil
}

func TestConnector_StoreInvalidCollectionName(t *testing.T) {
	conn, _ := newTestConnector(t, Config{})

	err := conn.Store(context.Background(), Entry{Content: "hello"}, "team/notes")
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestConnector_SearchStorageError(t *testing.T) {
	storageErr := fmt.Errorf("%w: connection refused", vectorstore.ErrStorageUnavailable)
	conn, err := NewConnector(&scriptedStore{existsErr: storageErr}, &fakeProvider{}, Config{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	entries, err := conn.Search(ctx, "q", "notes", 5)
	assert.ErrorIs(t, err, vectorstore.ErrStorageUnavailable)
	assert.Nil(t, entries)

	entries, err = conn.SearchByMetadata(ctx, "status", "open", "notes", 5)
	assert.ErrorIs(t, err, vectorstore.ErrStorageUnavailable)
	assert.Nil(t, entries)
}

func TestConnector_EnsureCollectionExists(t *testing.T) {
	storageErr := fmt.Errorf("%w: connection refused", vectorstore.ErrStorageUnavailable)

	tests := []struct {
		name        string
		store       *scriptedStore
		wantErr     error
		wantCreated int
	}{
		{
			name:  "already exists",
			store: &scriptedStore{existsResults: []bool{true}},
		},
		{
			name:        "created",
			store:       &scriptedStore{existsResults: []bool{false}},
			wantCreated: 1,
		},
		{
			name: "lost creation race",
			store: &scriptedStore{
				existsResults: []bool{false, true},
				createErr:     vectorstore.ErrCollectionExists,
			},
			wantCreated: 1,
		},
		{
			name: "exists error without collection",
			store: &scriptedStore{
				existsResults: []bool{false, false},
				createErr:     vectorstore.ErrCollectionExists,
			},
			wantErr:     vectorstore.ErrCollectionExists,
			wantCreated: 1,
		},
		{
			name:    "check fails",
			store:   &scriptedStore{existsErr: storageErr},
			wantErr: vectorstore.ErrStorageUnavailable,
		},
		{
			name:        "create fails",
			store:       &scriptedStore{existsResults: []bool{false}, createErr: storageErr},
			wantErr:     vectorstore.ErrStorageUnavailable,
			wantCreated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := NewConnector(tt.store, &fakeProvider{}, Config{}, logging.NewNop())
			require.NoError(t, err)

			err = conn.ensureCollectionExists(context.Background(), "notes")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, tt.store.created, tt.wantCreated)
		})
	}
}

func TestConnector_StorePointShape(t *testing.T) {
	store := &scriptedStore{existsResults: []bool{true, true}}
	conn, err := NewConnector(store, &fakeProvider{}, Config{}, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	entry := Entry{Content: "same text", Metadata: map[string]any{"content": "ignored"}}
	require.NoError(t, conn.Store(ctx, entry, "notes"))
	require.NoError(t, conn.Store(ctx, entry, "notes"))

	require.Len(t, store.upserted, 2)
	first, second := store.upserted[0], store.upserted[1]
	assert.NotEqual(t, first.ID, second.ID, "every store gets a fresh id")
	assert.Len(t, first.ID, 36)
	assert.Len(t, first.Vector, 4)
	assert.Equal(t, "same text", first.Payload["content"])
	assert.NotContains(t, first.Payload, "vector")
}

func TestConnector_StoreUpsertFailure(t *testing.T) {
	store := &scriptedStore{
		existsResults: []bool{true},
		upsertErr:     fmt.Errorf("%w: timeout", vectorstore.ErrStorageUnavailable),
	}
	conn, err := NewConnector(store, &fakeProvider{}, Config{}, logging.NewNop())
	require.NoError(t, err)

	err = conn.Store(context.Background(), Entry{Content: "x"}, "notes")
	assert.ErrorIs(t, err, vectorstore.ErrStorageUnavailable)
}
