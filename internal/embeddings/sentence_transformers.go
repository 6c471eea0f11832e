package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// dimensionProbe is embedded once at startup to learn the model's vector size.
const dimensionProbe = "dimension probe"

// SentenceTransformersConfig configures the sentence-transformers provider.
type SentenceTransformersConfig struct {
	// BaseURL is an OpenAI-compatible API root, e.g. http://localhost:8080/v1
	// for text-embeddings-inference.
	BaseURL string
	Model   string
	APIKey  config.Secret
	// VectorSize skips the startup probe when set.
	VectorSize        int
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// SentenceTransformersProvider embeds text through a server hosting a
// sentence-transformers model behind the OpenAI embeddings API.
type SentenceTransformersProvider struct {
	client    *openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
}

// NewSentenceTransformersProvider creates the provider and determines the
// vector size, probing the model once unless VectorSize is configured.
func NewSentenceTransformersProvider(ctx context.Context, cfg SentenceTransformersConfig) (*SentenceTransformersProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey.Value())
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	p := &SentenceTransformersProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.VectorSize,
		limiter:   newLimiter(cfg.RequestsPerSecond),
	}

	if p.dimension == 0 {
		vectors, err := p.embed(ctx, []string{dimensionProbe})
		if err != nil {
			return nil, fmt.Errorf("probing embedding dimension: %w", err)
		}
		p.dimension = len(vectors[0])
		if p.dimension == 0 {
			return nil, fmt.Errorf("%w: model returned an empty vector", ErrEmbeddingFailed)
		}
	}

	return p, nil
}

// EmbedDocuments embeds texts in a single request.
func (p *SentenceTransformersProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts)
}

// EmbedQuery embeds a query. sentence-transformers has no separate query
// mode, so this is a one-element document call.
func (p *SentenceTransformersProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the vector size.
func (p *SentenceTransformersProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the client holds no resources beyond its HTTP pool.
func (p *SentenceTransformersProvider) Close() error {
	return nil
}

func (p *SentenceTransformersProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	// Servers may return data out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: response index %d out of range", ErrEmbeddingFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}
