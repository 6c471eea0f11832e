package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")

	// ErrEmbeddingFailed indicates the model or remote API failed to produce
	// usable vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// DefaultGeminiModel is used when the gemini provider is selected without a
// Gemini model name.
const DefaultGeminiModel = "text-embedding-004"

// Provider turns text into vectors of a fixed size.
type Provider interface {
	// EmbedDocuments embeds texts for storage. The result has one vector per
	// input, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query, using the model's query mode where
	// it has one.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector size. It is known before any embedding call.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	Provider string
	Model    string
	// BaseURL is the OpenAI-compatible endpoint (sentence-transformers only).
	BaseURL string
	APIKey  config.Secret
	// VectorSize overrides the reported dimension of remote providers.
	VectorSize int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// ONNXVersion selects the runtime to download when none is installed.
	ONNXVersion string
	// RequestsPerSecond limits remote calls; 0 disables limiting.
	RequestsPerSecond float64
}

// ConfigFromApp maps the server configuration onto a ProviderConfig.
func ConfigFromApp(cfg config.EmbeddingConfig) ProviderConfig {
	pc := ProviderConfig{
		Provider:          cfg.Provider,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		VectorSize:        cfg.VectorSize,
		CacheDir:          cfg.CacheDir,
		ONNXVersion:       cfg.ONNXVersion,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	if cfg.Provider == config.ProviderGemini {
		if cfg.GeminiAPIKey.IsSet() {
			pc.APIKey = cfg.GeminiAPIKey
		}
		if strings.HasPrefix(cfg.Model, "sentence-transformers/") {
			pc.Model = DefaultGeminiModel
		}
	}
	return pc
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *logging.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Provider {
	case config.ProviderFastEmbed, "":
		p, err = NewFastEmbedProvider(ctx, FastEmbedConfig{
			Model:       cfg.Model,
			CacheDir:    cfg.CacheDir,
			ONNXVersion: cfg.ONNXVersion,
		}, logger)
	case config.ProviderSentenceTransformers:
		p, err = NewSentenceTransformersProvider(ctx, SentenceTransformersConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKey:            cfg.APIKey,
			VectorSize:        cfg.VectorSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case config.ProviderGemini:
		p, err = NewGeminiProvider(ctx, GeminiConfig{
			Model:             cfg.Model,
			APIKey:            cfg.APIKey,
			VectorSize:        cfg.VectorSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()))

	return Instrument(p, cfg.Model, NewMetrics(logger.Underlying())), nil
}

// Instrument wraps p with metrics and result validation.
func Instrument(p Provider, model string, metrics *Metrics) Provider {
	return &instrumented{next: p, model: model, metrics: metrics}
}

// instrumented records metrics and enforces the shape of every result.
type instrumented struct {
	next    Provider
	model   string
	metrics *Metrics
}

func (i *instrumented) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	defer func() {
		i.metrics.RecordGeneration(ctx, i.model, "embed_documents", time.Since(start), len(texts), err)
	}()

	vectors, err = i.next.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrapFailure(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	for n, v := range vectors {
		if err := i.checkDimension(v); err != nil {
			return nil, fmt.Errorf("document %d: %w", n, err)
		}
	}
	return vectors, nil
}

func (i *instrumented) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		i.metrics.RecordGeneration(ctx, i.model, "embed_query", time.Since(start), 1, err)
	}()

	vector, err = i.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, wrapFailure(err)
	}
	if err := i.checkDimension(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (i *instrumented) checkDimension(v []float32) error {
	if want := i.next.Dimension(); len(v) != want {
		return fmt.Errorf("%w: vector has %d dimensions, expected %d", ErrEmbeddingFailed, len(v), want)
	}
	return nil
}

func (i *instrumented) Dimension() int { return i.next.Dimension() }

func (i *instrumented) Close() error { return i.next.Close() }

// wrapFailure makes every provider error match ErrEmbeddingFailed while
// keeping context cancellation visible to callers.
func wrapFailure(err error) error {
	if errors.Is(err, ErrEmbeddingFailed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
}

// newLimiter returns a limiter for rps requests per second; rps <= 0 means
// unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
