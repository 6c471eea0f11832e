// Package config provides configuration loading for mcp-server-qdrant.
//
// Configuration is read from defaults, an optional YAML file and the
// environment, in that order of increasing precedence. Environment variable
// names follow the flat upstream convention (QDRANT_URL, COLLECTION_NAME,
// EMBEDDING_PROVIDER, ...) and are mapped onto nested koanf keys.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrInvalidConfig indicates a configuration that cannot be used to start the server.
var ErrInvalidConfig = errors.New("invalid configuration")

// Embedding provider tags.
const (
	ProviderFastEmbed            = "fastembed"
	ProviderSentenceTransformers = "sentence-transformers"
	ProviderGemini               = "gemini-transformer"
)

// Output formats for tool results.
const (
	OutputFormatted = "formatted"
	OutputJSON      = "json"
)

// Transports the server can run on.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Default tool descriptions.
const (
	DefaultStoreDescription = "Keep the memory for later use, when you are asked to remember something."
	DefaultFindDescription  = "Look up memories in Qdrant. Use this tool when you need to: \n" +
		" - Find memories by their content \n" +
		" - Access memories for further analysis \n" +
		" - Get some personal information about the user"
	DefaultFindByMetadataDescription = "Find specific vectors in Qdrant by metadata key-value pairs. Use this tool when you need to: \n" +
		" - Filter results by specific metadata fields like 'mahkeme', 'durum', 'karar_no', etc. \n" +
		" - Find all documents that have a specific metadata value \n" +
		" - Search for documents by their properties rather than content"
)

// Config holds the complete server configuration.
type Config struct {
	Embedding EmbeddingConfig `koanf:"embedding"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Tools     ToolsConfig     `koanf:"tools"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
	// GeminiAPIKey is kept apart from APIKey so GEMINI_API_KEY works unchanged.
	GeminiAPIKey Secret `koanf:"gemini_api_key"`
	BaseURL      string `koanf:"base_url"`
	// VectorSize overrides the reported dimension of remote providers.
	VectorSize        int     `koanf:"vector_size"`
	CacheDir          string  `koanf:"cache_dir"`
	ONNXVersion       string  `koanf:"onnx_version"`
	RequestsPerSecond float64 `koanf:"rate_limit"`
}

// QdrantConfig configures the vector database connection.
type QdrantConfig struct {
	URL            string   `koanf:"url"`
	APIKey         Secret   `koanf:"api_key"`
	LocalPath      string   `koanf:"local_path"`
	CollectionName string   `koanf:"collection_name"`
	SearchLimit    int      `koanf:"search_limit"`
	ReadOnly       bool     `koanf:"read_only"`
	Timeout        Duration `koanf:"timeout"`
	OutputFormat   string   `koanf:"output_format"`
}

// ToolsConfig holds the descriptions advertised for each tool.
type ToolsConfig struct {
	StoreDescription          string `koanf:"store_description"`
	FindDescription           string `koanf:"find_description"`
	FindByMetadataDescription string `koanf:"find_by_metadata_description"`
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Transport       string   `koanf:"transport"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the logging knobs exposed through the environment.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	Insecure    bool   `koanf:"insecure"`
	ServiceName string `koanf:"service_name"`
}

// HasDefaultCollection reports whether tools may omit collection_name.
func (c *QdrantConfig) HasDefaultCollection() bool {
	return c.CollectionName != ""
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   ProviderFastEmbed,
			Model:      "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:    "http://localhost:8080/v1",
			VectorSize: 0,
		},
		Qdrant: QdrantConfig{
			SearchLimit:  10,
			Timeout:      Duration(30 * time.Second),
			OutputFormat: OutputFormatted,
		},
		Tools: ToolsConfig{
			StoreDescription:          DefaultStoreDescription,
			FindDescription:           DefaultFindDescription,
			FindByMetadataDescription: DefaultFindByMetadataDescription,
		},
		Server: ServerConfig{
			Transport:       TransportStdio,
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "mcp-server-qdrant",
		},
	}
}

// Validate checks the configuration for contradictions.
//
// Returns an error wrapping ErrInvalidConfig if:
//   - both or neither of Qdrant.URL and Qdrant.LocalPath are set
//   - the embedding provider, output format or transport is unknown
//   - the search limit or server port is out of range
func (c *Config) Validate() error {
	if c.Qdrant.URL != "" && c.Qdrant.LocalPath != "" {
		return fmt.Errorf("%w: only one of QDRANT_URL or QDRANT_LOCAL_PATH may be set", ErrInvalidConfig)
	}
	if c.Qdrant.URL == "" && c.Qdrant.LocalPath == "" {
		return fmt.Errorf("%w: one of QDRANT_URL or QDRANT_LOCAL_PATH must be set", ErrInvalidConfig)
	}
	if c.Qdrant.URL != "" {
		u, err := url.Parse(c.Qdrant.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: QDRANT_URL %q is not an absolute URL", ErrInvalidConfig, c.Qdrant.URL)
		}
	}

	switch c.Embedding.Provider {
	case ProviderFastEmbed, ProviderSentenceTransformers, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfig)
	}
	if c.Embedding.VectorSize < 0 {
		return fmt.Errorf("%w: vector size must be >= 0, got %d", ErrInvalidConfig, c.Embedding.VectorSize)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: embedding rate limit must be >= 0", ErrInvalidConfig)
	}

	if c.Qdrant.SearchLimit < 1 {
		return fmt.Errorf("%w: search limit must be positive, got %d", ErrInvalidConfig, c.Qdrant.SearchLimit)
	}
	if c.Qdrant.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: qdrant timeout must be positive", ErrInvalidConfig)
	}
	switch c.Qdrant.OutputFormat {
	case OutputFormatted, OutputJSON:
	default:
		return fmt.Errorf("%w: output format must be %q or %q, got %q",
			ErrInvalidConfig, OutputFormatted, OutputJSON, c.Qdrant.OutputFormat)
	}

	switch c.Server.Transport {
	case TransportStdio:
	case TransportSSE, TransportStreamableHTTP:
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Server.Transport)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ErrInvalidConfig)
	}

	return nil
}
