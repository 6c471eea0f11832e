package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every supported variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		if val, ok := os.LookupEnv(name); ok {
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, val) })
		}
	}
}

func writeConfigFile(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)

	t.Setenv("QDRANT_URL", "https://qdrant.example.com:6334")
	t.Setenv("QDRANT_API_KEY", "super-secret")
	t.Setenv("COLLECTION_NAME", "notes")
	t.Setenv("QDRANT_SEARCH_LIMIT", "5")
	t.Setenv("QDRANT_READ_ONLY", "true")
	t.Setenv("QDRANT_TIMEOUT", "12")
	t.Setenv("QDRANT_OUTPUT_FORMAT", "json")
	t.Setenv("EMBEDDING_PROVIDER", "gemini-transformer")
	t.Setenv("EMBEDDING_MODEL", "models/text-embedding-004")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("TOOL_STORE_DESCRIPTION", "store things")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://qdrant.example.com:6334", cfg.Qdrant.URL)
	assert.Equal(t, "super-secret", cfg.Qdrant.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Qdrant.APIKey.String())
	assert.Equal(t, "notes", cfg.Qdrant.CollectionName)
	assert.Equal(t, 5, cfg.Qdrant.SearchLimit)
	assert.True(t, cfg.Qdrant.ReadOnly)
	assert.Equal(t, 12*time.Second, cfg.Qdrant.Timeout.Duration())
	assert.Equal(t, OutputJSON, cfg.Qdrant.OutputFormat)
	assert.Equal(t, ProviderGemini, cfg.Embedding.Provider)
	assert.Equal(t, "models/text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, "gemini-key", cfg.Embedding.GeminiAPIKey.Value())
	assert.Equal(t, "store things", cfg.Tools.StoreDescription)
	assert.Equal(t, DefaultFindDescription, cfg.Tools.FindDescription)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_RejectsContradictoryEndpoints(t *testing.T) {
	clearEnv(t)

	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("QDRANT_LOCAL_PATH", t.TempDir())

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoad_RequiresEndpoint(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, `
qdrant:
  local_path: /var/lib/qdrant
  collection_name: memories
  timeout: 5s
embedding:
  provider: sentence-transformers
  base_url: http://tei:8080/v1
server:
  transport: sse
  port: 9000
`, 0600)

	cfg, err := LoadWithFile(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/qdrant", cfg.Qdrant.LocalPath)
	assert.Equal(t, "memories", cfg.Qdrant.CollectionName)
	assert.Equal(t, 5*time.Second, cfg.Qdrant.Timeout.Duration())
	assert.Equal(t, ProviderSentenceTransformers, cfg.Embedding.Provider)
	assert.Equal(t, "http://tei:8080/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, TransportSSE, cfg.Server.Transport)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Untouched values keep their defaults.
	assert.Equal(t, 10, cfg.Qdrant.SearchLimit)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, `
qdrant:
  local_path: /var/lib/qdrant
  collection_name: from-file
`, 0600)
	t.Setenv("COLLECTION_NAME", "from-env")

	cfg, err := LoadWithFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Qdrant.CollectionName)
}

func TestLoadWithFile_Overrides(t *testing.T) {
	clearEnv(t)

	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("QDRANT_READ_ONLY", "false")

	cfg, err := LoadWithFile("", map[string]any{
		"qdrant.read_only": true,
		"server.transport": TransportStreamableHTTP,
		"server.port":      8123,
	})
	require.NoError(t, err)
	assert.True(t, cfg.Qdrant.ReadOnly)
	assert.Equal(t, TransportStreamableHTTP, cfg.Server.Transport)
	assert.Equal(t, 8123, cfg.Server.Port)
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, "qdrant: [unterminated", 0600)
	_, err := LoadWithFile(path, nil)
	assert.Error(t, err)
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	clearEnv(t)

	path := writeConfigFile(t, "qdrant:\n  url: http://localhost:6333\n", 0644)
	_, err := LoadWithFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, "# "+strings.Repeat("x", maxConfigFileSize+1), 0600)
	_, err := LoadWithFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
