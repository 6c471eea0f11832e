// Mcp-server-qdrant is a Model Context Protocol server that keeps and
// retrieves memories in a Qdrant vector database.
//
// Configuration is loaded from the environment (QDRANT_URL, COLLECTION_NAME,
// EMBEDDING_PROVIDER, ...), an optional YAML file and command-line flags.
// See internal/config for details.
//
// Usage:
//
//	# Serve over stdio against a remote Qdrant
//	QDRANT_URL=http://localhost:6334 COLLECTION_NAME=notes mcp-server-qdrant
//
//	# Serve over SSE with an embedded local store
//	mcp-server-qdrant --local-path ~/.mcp-qdrant --transport sse --port 8000
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/embeddings"
	mcphttp "github.com/fyrsmithlabs/mcp-server-qdrant/internal/http"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/mcp"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/memory"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/telemetry"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command-line options. Only flags set explicitly override the
// environment.
type flags struct {
	configPath     string
	transport      string
	host           string
	port           int
	qdrantURL      string
	localPath      string
	collectionName string
	readOnly       bool
	searchLimit    int
	provider       string
	model          string
	logLevel       string
}

// flagKeys maps flag names to koanf keys.
var flagKeys = map[string]string{
	"transport":          "server.transport",
	"host":               "server.host",
	"port":               "server.port",
	"qdrant-url":         "qdrant.url",
	"local-path":         "qdrant.local_path",
	"collection-name":    "qdrant.collection_name",
	"read-only":          "qdrant.read_only",
	"search-limit":       "qdrant.search_limit",
	"embedding-provider": "embedding.provider",
	"embedding-model":    "embedding.model",
	"log-level":          "logging.level",
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "mcp-server-qdrant",
		Short: "MCP server for keeping and retrieving memories in Qdrant",
		Long: `mcp-server-qdrant exposes qdrant-store, qdrant-find and
qdrant-find-by-metadata as Model Context Protocol tools.

Configuration precedence: flags, environment, config file, defaults.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFile(f.configPath, overrides(cmd, f))
			if err != nil {
				return err
			}
			err = run(cmd.Context(), cfg)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "path to a YAML config file (0600 permissions)")
	fs.StringVar(&f.transport, "transport", config.TransportStdio, "transport: stdio, sse or streamable-http")
	fs.StringVar(&f.host, "host", "0.0.0.0", "bind host for http transports")
	fs.IntVar(&f.port, "port", 8000, "bind port for http transports")
	fs.StringVar(&f.qdrantURL, "qdrant-url", "", "Qdrant gRPC URL")
	fs.StringVar(&f.localPath, "local-path", "", "directory of an embedded local store")
	fs.StringVar(&f.collectionName, "collection-name", "", "default collection")
	fs.BoolVar(&f.readOnly, "read-only", false, "disable the qdrant-store tool")
	fs.IntVar(&f.searchLimit, "search-limit", 10, "maximum results per search")
	fs.StringVar(&f.provider, "embedding-provider", config.ProviderFastEmbed, "fastembed, sentence-transformers or gemini-transformer")
	fs.StringVar(&f.model, "embedding-model", "", "embedding model name")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "mcp-server-qdrant\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

// overrides returns the explicitly set flags keyed by koanf path.
func overrides(cmd *cobra.Command, f *flags) map[string]any {
	values := map[string]any{
		"transport":          f.transport,
		"host":               f.host,
		"port":               f.port,
		"qdrant-url":         f.qdrantURL,
		"local-path":         f.localPath,
		"collection-name":    f.collectionName,
		"read-only":          f.readOnly,
		"search-limit":       f.searchLimit,
		"embedding-provider": f.provider,
		"embedding-model":    f.model,
		"log-level":          f.logLevel,
	}

	out := make(map[string]any)
	for name, key := range flagKeys {
		if cmd.Flags().Changed(name) {
			out[key] = values[name]
		}
	}
	return out
}

// run wires the server and blocks until ctx is cancelled or the transport
// stops. HTTP transports return http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, cfg *config.Config) error {
	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger = logger.WithOTel(tel.LoggerProvider())

	logger.Info(ctx, "starting mcp-server-qdrant",
		zap.String("version", version),
		zap.String("transport", cfg.Server.Transport),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("read_only", cfg.Qdrant.ReadOnly),
		zap.String("default_collection", cfg.Qdrant.CollectionName))

	provider, err := embeddings.NewProvider(ctx, embeddings.ConfigFromApp(cfg.Embedding), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	defer provider.Close()

	store, err := vectorstore.NewStore(ctx, cfg.Qdrant, provider.Dimension(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer store.Close()

	connector, err := memory.NewConnector(store, provider, memory.Config{
		DefaultCollection: cfg.Qdrant.CollectionName,
		SearchLimit:       cfg.Qdrant.SearchLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize connector: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.ConfigFromApp(cfg, version), connector, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mcp server: %w", err)
	}

	if cfg.Server.Transport == config.TransportStdio {
		return mcpServer.Run(ctx)
	}

	srv, err := mcphttp.NewServer(&mcphttp.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Transport:       cfg.Server.Transport,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}, mcpServer.MCPServer(), mcpServer.ToolNames(), connector, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	return srv.Start(ctx)
}
