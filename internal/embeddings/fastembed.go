//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"go.uber.org/zap"
)

// FastEmbedProvider embeds text with a local ONNX model.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	mu        sync.RWMutex
}

// NewFastEmbedProvider loads the model, downloading the ONNX runtime and the
// model files on first use.
func NewFastEmbedProvider(ctx context.Context, cfg FastEmbedConfig, logger *logging.Logger) (*FastEmbedProvider, error) {
	model, ok := lookupFastEmbedModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q (supported: BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5, sentence-transformers/all-MiniLM-L6-v2)", ErrInvalidConfig, cfg.Model)
	}

	libPath, err := EnsureONNXRuntime(ctx, cfg.ONNXVersion, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = defaultModelCacheDir()
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	// Progress bars would write to stdout, which the stdio transport owns.
	showProgress := false

	logger.Info(ctx, "loading fastembed model",
		zap.String("model", cfg.Model),
		zap.String("cache_dir", cacheDir),
		zap.String("onnx_runtime", libPath))

	flagEmbed, err := offload(ctx, func() (*fastembed.FlagEmbedding, error) {
		return fastembed.NewFlagEmbedding(&fastembed.InitOptions{
			Model:                fastembed.EmbeddingModel(model.id),
			CacheDir:             cacheDir,
			MaxLength:            maxLength,
			ShowDownloadProgress: &showProgress,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing fastembed: %v", ErrEmbeddingFailed, err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: model.dimension,
	}, nil
}

// EmbedDocuments embeds texts with the model's passage prefix.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return offload(ctx, func() ([][]float32, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.model == nil {
			return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
		}
		return p.model.PassageEmbed(texts, 256)
	})
}

// EmbedQuery embeds text with the model's query prefix.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return offload(ctx, func() ([]float32, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.model == nil {
			return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
		}
		return p.model.QueryEmbed(text)
	})
}

// Dimension returns the embedding dimension for the current model.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases the ONNX session. It waits for in-flight calls.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
