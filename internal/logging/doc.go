// Package logging provides structured logging for mcp-server-qdrant.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output to stderr by default, since stdout carries the stdio MCP stream
//   - Automatic context field injection (trace_id, request.id, tool, collection)
//   - Secret redaction at the encoder level
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg, err := logging.FromAppConfig(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTool(ctx, "qdrant-find")
//	ctx = logging.WithCollection(ctx, "notes")
//	logger.Info(ctx, "search completed", zap.Int("results", n))
//
// # Secret Redaction
//
// Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "connecting", logging.URL("url", cfg.Qdrant.URL),
//	    logging.Secret("api_key", cfg.Qdrant.APIKey))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	svc := NewService(tl.Logger)
//	...
//	tl.AssertLogged(t, zapcore.InfoLevel, "search completed")
//	tl.AssertNoSecrets(t)
package logging
