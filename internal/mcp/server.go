package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Memory is the storage behind the tools. *memory.Connector implements it.
type Memory interface {
	Store(ctx context.Context, entry memory.Entry, collection string) error
	Search(ctx context.Context, query, collection string, limit int) ([]memory.Entry, error)
	SearchByMetadata(ctx context.Context, key, value, collection string, limit int) ([]memory.Entry, error)
	DefaultCollection() string
}

// Server is an MCP server exposing the qdrant tools.
type Server struct {
	mcp          *mcp.Server
	memory       Memory
	config       *Config
	metrics      *Metrics
	toolRegistry *ToolRegistry
	logger       *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "mcp-server-qdrant")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// ReadOnly disables the store tool.
	ReadOnly bool

	// OutputFormat selects how entries are rendered: "formatted" or "json".
	OutputFormat string

	// SearchLimit caps the results of the find tools; 0 uses the
	// connector's limit.
	SearchLimit int

	StoreDescription          string
	FindDescription           string
	FindByMetadataDescription string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:                      "mcp-server-qdrant",
		Version:                   "dev",
		OutputFormat:              config.OutputFormatted,
		StoreDescription:          config.DefaultStoreDescription,
		FindDescription:           config.DefaultFindDescription,
		FindByMetadataDescription: config.DefaultFindByMetadataDescription,
	}
}

// ConfigFromApp builds the server configuration from the application config.
func ConfigFromApp(cfg *config.Config, version string) *Config {
	c := DefaultConfig()
	if version != "" {
		c.Version = version
	}
	c.ReadOnly = cfg.Qdrant.ReadOnly
	c.SearchLimit = cfg.Qdrant.SearchLimit
	if cfg.Qdrant.OutputFormat != "" {
		c.OutputFormat = cfg.Qdrant.OutputFormat
	}
	if cfg.Tools.StoreDescription != "" {
		c.StoreDescription = cfg.Tools.StoreDescription
	}
	if cfg.Tools.FindDescription != "" {
		c.FindDescription = cfg.Tools.FindDescription
	}
	if cfg.Tools.FindByMetadataDescription != "" {
		c.FindByMetadataDescription = cfg.Tools.FindByMetadataDescription
	}
	return c
}

// NewServer creates a new MCP server backed by mem.
func NewServer(cfg *Config, mem Memory, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if mem == nil {
		return nil, errors.New("memory connector is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	switch cfg.OutputFormat {
	case "":
		cfg.OutputFormat = config.OutputFormatted
	case config.OutputFormatted, config.OutputJSON:
	default:
		return nil, fmt.Errorf("%w: unknown output format %q", config.ErrInvalidConfig, cfg.OutputFormat)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:          mcpServer,
		memory:       mem,
		config:       cfg,
		metrics:      NewMetrics(logger),
		toolRegistry: NewToolRegistry(),
		logger:       logger.Named("mcp"),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	s.logger.Info(context.Background(), "registered tools",
		zap.Strings("tools", s.toolRegistry.ListNames()),
		zap.Bool("read_only", cfg.ReadOnly),
		zap.String("default_collection", mem.DefaultCollection()))
	return s, nil
}

// MCPServer returns the underlying SDK server, for mounting on HTTP
// transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Tools returns the registered tools.
func (s *Server) Tools() []*ToolMetadata {
	return s.toolRegistry.List()
}

// ToolNames returns the sorted names of the registered tools.
func (s *Server) ToolNames() []string {
	return s.toolRegistry.ListNames()
}

// Run serves MCP on stdin/stdout until ctx is done or the client disconnects.
// Cancellation is a clean stop.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server run failed: %w", err)
	}
	s.logger.Info(ctx, "MCP server stopped")
	return nil
}
