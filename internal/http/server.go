// Package http serves the MCP tools over SSE or streamable HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MCP endpoint paths.
const (
	SSEPath        = "/sse"
	StreamablePath = "/mcp"
)

// StorageChecker reports whether the vector store is reachable.
// *memory.Connector implements it.
type StorageChecker interface {
	ListCollectionNames(ctx context.Context) ([]string, error)
}

// Server hosts an MCP server on an HTTP transport.
type Server struct {
	echo    *echo.Echo
	mcp     *mcp.Server
	storage StorageChecker
	tools   []string
	logger  *logging.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Transport is config.TransportSSE or config.TransportStreamableHTTP.
	Transport       string
	ShutdownTimeout time.Duration
	// HealthTimeout bounds the storage probe of /health.
	HealthTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8000,
		Transport:       config.TransportStreamableHTTP,
		ShutdownTimeout: 10 * time.Second,
		HealthTimeout:   5 * time.Second,
	}
}

// NewServer creates a new HTTP server for mcpServer. tools lists the
// registered tool names for /health.
func NewServer(cfg *Config, mcpServer *mcp.Server, tools []string, storage StorageChecker, logger *logging.Logger) (*Server, error) {
	if mcpServer == nil {
		return nil, errors.New("mcp server is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultConfig().HealthTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		mcp:     mcpServer,
		storage: storage,
		tools:   tools,
		logger:  logger.Named("http"),
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(s.requestLogger)

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// requestLogger tags the request context with its request ID and logs the
// request once it completes. SSE streams are logged when they close.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), requestID)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)

		s.logger.Debug(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() error {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	getServer := func(*http.Request) *mcp.Server { return s.mcp }

	switch s.config.Transport {
	case config.TransportSSE:
		s.echo.Any(SSEPath, echo.WrapHandler(mcp.NewSSEHandler(getServer, nil)))
	case config.TransportStreamableHTTP:
		s.echo.Any(StreamablePath, echo.WrapHandler(mcp.NewStreamableHTTPHandler(getServer, nil)))
	default:
		return fmt.Errorf("%w: transport %q is not served over http", config.ErrInvalidConfig, s.config.Transport)
	}
	return nil
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Transport string   `json:"transport"`
	Tools     []string `json:"tools"`
	Storage   string   `json:"storage"`
}

// handleHealth reports the server status. It returns 503 when the vector
// store cannot be reached.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Transport: s.config.Transport,
		Tools:     s.tools,
		Storage:   "ok",
	}
	if s.storage == nil {
		return c.JSON(http.StatusOK, resp)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.HealthTimeout)
	defer cancel()
	if _, err := s.storage.ListCollectionNames(ctx); err != nil {
		s.logger.Warn(ctx, "health check: storage unavailable", zap.Error(err))
		resp.Status = "degraded"
		resp.Storage = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
// Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Addr()
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.logger.Info(ctx, "starting http server",
		zap.String("addr", addr),
		zap.String("transport", s.config.Transport),
		zap.String("mcp_path", s.mcpPath()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) mcpPath() string {
	if s.config.Transport == config.TransportSSE {
		return SSEPath
	}
	return StreamablePath
}
