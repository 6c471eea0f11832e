package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// envKeys maps supported environment variables to koanf keys.
var envKeys = map[string]string{
	"EMBEDDING_PROVIDER":    "embedding.provider",
	"EMBEDDING_MODEL":       "embedding.model",
	"EMBEDDING_API_KEY":     "embedding.api_key",
	"EMBEDDING_BASE_URL":    "embedding.base_url",
	"EMBEDDING_VECTOR_SIZE": "embedding.vector_size",
	"EMBEDDING_CACHE_DIR":   "embedding.cache_dir",
	"EMBEDDING_RATE_LIMIT":  "embedding.rate_limit",
	"ONNX_VERSION":          "embedding.onnx_version",
	"GEMINI_API_KEY":        "embedding.gemini_api_key",

	"QDRANT_URL":           "qdrant.url",
	"QDRANT_API_KEY":       "qdrant.api_key",
	"QDRANT_LOCAL_PATH":    "qdrant.local_path",
	"COLLECTION_NAME":      "qdrant.collection_name",
	"QDRANT_SEARCH_LIMIT":  "qdrant.search_limit",
	"QDRANT_READ_ONLY":     "qdrant.read_only",
	"QDRANT_TIMEOUT":       "qdrant.timeout",
	"QDRANT_OUTPUT_FORMAT": "qdrant.output_format",

	"TOOL_STORE_DESCRIPTION":            "tools.store_description",
	"TOOL_FIND_DESCRIPTION":             "tools.find_description",
	"TOOL_FIND_BY_METADATA_DESCRIPTION": "tools.find_by_metadata_description",

	"MCP_TRANSPORT":           "server.transport",
	"HOST":                    "server.host",
	"PORT":                    "server.port",
	"SERVER_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",

	"OTEL_ENABLE":                 "telemetry.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "telemetry.endpoint",
	"OTEL_EXPORTER_OTLP_PROTOCOL": "telemetry.protocol",
	"OTEL_EXPORTER_OTLP_INSECURE": "telemetry.insecure",
	"OTEL_SERVICE_NAME":           "telemetry.service_name",
}

// Load reads configuration from the environment only.
func Load() (*Config, error) {
	return LoadWithFile("", nil)
}

// LoadWithFile loads configuration from an optional YAML file, then overrides
// it with environment variables and finally with the given overrides (usually
// command-line flags keyed by koanf path, e.g. "qdrant.url").
//
// Configuration precedence (highest to lowest):
//  1. Overrides
//  2. Environment variables (QDRANT_URL, COLLECTION_NAME, ...)
//  3. YAML config file
//  4. Defaults
//
// # Security Considerations
//
// The configuration file may hold API keys, so it MUST have 0600 or 0400
// permissions and be smaller than 1MB.
//
// Durations in YAML must be strings ("30s"); QDRANT_TIMEOUT also accepts a
// bare number of seconds.
func LoadWithFile(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps an environment variable to its koanf key. Unknown variables
// map to "" and are skipped by the provider.
func envKey(name string) string {
	return envKeys[strings.ToUpper(name)]
}

// readConfigFile opens the file once and validates it through the open
// descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("config path is a directory")
	}

	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
