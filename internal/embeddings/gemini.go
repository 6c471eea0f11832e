package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	// DefaultGeminiVectorSize is the output size of Gemini text embedding models.
	DefaultGeminiVectorSize = 768

	// geminiMaxBatch is the BatchEmbedContents request limit.
	geminiMaxBatch = 100
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	Model  string
	APIKey config.Secret
	// VectorSize is reported without a round trip; responses of any other
	// size are rejected. Defaults to 768.
	VectorSize        int
	RequestsPerSecond float64
	// ClientOptions are appended to the API key option, e.g. an endpoint override.
	ClientOptions []option.ClientOption
}

// geminiBackend is the subset of the Gemini API the provider needs.
type geminiBackend interface {
	embedQuery(ctx context.Context, text string) ([]float32, error)
	embedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	close() error
}

// GeminiProvider embeds text with a Gemini embedding model.
type GeminiProvider struct {
	backend   geminiBackend
	dimension int
	limiter   *rate.Limiter
}

// NewGeminiProvider creates a provider using the Gemini API key in cfg.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for the gemini-transformer provider", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey.Value())}, cfg.ClientOptions...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", ErrInvalidConfig, err)
	}

	return newGeminiProvider(newGenaiBackend(client, cfg.Model), cfg), nil
}

func newGeminiProvider(backend geminiBackend, cfg GeminiConfig) *GeminiProvider {
	dim := cfg.VectorSize
	if dim == 0 {
		dim = DefaultGeminiVectorSize
	}
	return &GeminiProvider{
		backend:   backend,
		dimension: dim,
		limiter:   newLimiter(cfg.RequestsPerSecond),
	}
}

// EmbedDocuments embeds texts as retrieval documents, in batches of at most
// 100 per request.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		vectors, err := p.backend.embedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds text as a retrieval query.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	vector, err := p.backend.embedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the configured vector size.
func (p *GeminiProvider) Dimension() int {
	return p.dimension
}

// Close closes the Gemini client.
func (p *GeminiProvider) Close() error {
	return p.backend.close()
}

// genaiBackend calls the Gemini API. Task types are fixed per model handle,
// so queries and documents use separate handles.
type genaiBackend struct {
	client   *genai.Client
	queries  *genai.EmbeddingModel
	document *genai.EmbeddingModel
}

func newGenaiBackend(client *genai.Client, model string) *genaiBackend {
	queries := client.EmbeddingModel(model)
	queries.TaskType = genai.TaskTypeRetrievalQuery
	document := client.EmbeddingModel(model)
	document.TaskType = genai.TaskTypeRetrievalDocument
	return &genaiBackend{client: client, queries: queries, document: document}
}

func (b *genaiBackend) embedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.queries.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}
	return resp.Embedding.Values, nil
}

func (b *genaiBackend) embedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	batch := b.document.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := b.document.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("missing embedding %d in gemini response", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

func (b *genaiBackend) close() error {
	return b.client.Close()
}
