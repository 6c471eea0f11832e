package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeminiBackend struct {
	dim        int
	batchSizes []int
	queries    []string
	err        error
	closed     bool
}

func (f *fakeGeminiBackend) embedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, text)
	return make([]float32, f.dim), nil
}

func (f *fakeGeminiBackend) embedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeGeminiBackend) close() error {
	f.closed = true
	return nil
}

func TestGemini_DefaultDimension(t *testing.T) {
	p := newGeminiProvider(&fakeGeminiBackend{dim: 768}, GeminiConfig{})
	assert.Equal(t, DefaultGeminiVectorSize, p.Dimension())

	p = newGeminiProvider(&fakeGeminiBackend{dim: 256}, GeminiConfig{VectorSize: 256})
	assert.Equal(t, 256, p.Dimension())
}

func TestGemini_EmbedDocumentsBatches(t *testing.T) {
	backend := &fakeGeminiBackend{dim: 8}
	p := newGeminiProvider(backend, GeminiConfig{VectorSize: 8})

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "doc"
	}

	vectors, err := p.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 250)
	assert.Equal(t, []int{100, 100, 50}, backend.batchSizes)
}

func TestGemini_EmbedQuery(t *testing.T) {
	backend := &fakeGeminiBackend{dim: 8}
	p := newGeminiProvider(backend, GeminiConfig{VectorSize: 8})

	v, err := p.EmbedQuery(context.Background(), "where is it")
	require.NoError(t, err)
	assert.Len(t, v, 8)
	assert.Equal(t, []string{"where is it"}, backend.queries)

	require.NoError(t, p.Close())
	assert.True(t, backend.closed)
}

func TestGemini_BackendError(t *testing.T) {
	backend := &fakeGeminiBackend{dim: 8, err: errors.New("quota exceeded")}
	p := newGeminiProvider(backend, GeminiConfig{VectorSize: 8})

	_, err := p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = p.EmbedDocuments(context.Background(), []string{"d"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestGemini_UnexpectedVectorSizeRejected(t *testing.T) {
	// The model returns 768 values but the server was told 512.
	p := Instrument(newGeminiProvider(&fakeGeminiBackend{dim: 768}, GeminiConfig{VectorSize: 512}), DefaultGeminiModel, nil)

	_, err := p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewGeminiProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), GeminiConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
