package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/qdrant"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by the configuration:
//   - QDRANT_URL: a QdrantStore talking gRPC to the server
//   - QDRANT_LOCAL_PATH: an embedded ChromemStore at that path
//
// vectorSize is the embedding provider's dimension.
func NewStore(ctx context.Context, cfg config.QdrantConfig, vectorSize int, logger *logging.Logger) (Store, error) {
	switch {
	case cfg.URL != "" && cfg.LocalPath != "":
		return nil, fmt.Errorf("%w: QDRANT_URL and QDRANT_LOCAL_PATH are mutually exclusive", ErrInvalidConfig)

	case cfg.URL != "":
		clientCfg, err := qdrant.ConfigFromURL(cfg.URL, cfg.APIKey.Value(), cfg.Timeout.Duration())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		client, err := qdrant.NewGRPCClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		logger.Info(ctx, "using qdrant server",
			logging.URL("url", cfg.URL),
			logging.Secret("api_key", cfg.APIKey),
			zap.Duration("timeout", clientCfg.RequestTimeout))
		client.Ping(ctx)
		return NewQdrantStore(client, logger), nil

	case cfg.LocalPath != "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.LocalPath,
			VectorSize: vectorSize,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: one of QDRANT_URL or QDRANT_LOCAL_PATH is required", ErrInvalidConfig)
	}
}
