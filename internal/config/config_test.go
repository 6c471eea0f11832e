package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Qdrant.URL = "http://localhost:6333"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ProviderFastEmbed, cfg.Embedding.Provider)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, 10, cfg.Qdrant.SearchLimit)
	assert.False(t, cfg.Qdrant.ReadOnly)
	assert.Equal(t, 30*time.Second, cfg.Qdrant.Timeout.Duration())
	assert.Equal(t, OutputFormatted, cfg.Qdrant.OutputFormat)
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, DefaultStoreDescription, cfg.Tools.StoreDescription)
	assert.Equal(t, DefaultFindDescription, cfg.Tools.FindDescription)
	assert.Equal(t, DefaultFindByMetadataDescription, cfg.Tools.FindByMetadataDescription)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "remote url",
			mutate: func(c *Config) {},
		},
		{
			name: "local path",
			mutate: func(c *Config) {
				c.Qdrant.URL = ""
				c.Qdrant.LocalPath = "/tmp/qdrant"
			},
		},
		{
			name:    "url and local path",
			mutate:  func(c *Config) { c.Qdrant.LocalPath = "/tmp/qdrant" },
			wantErr: true,
		},
		{
			name:    "neither url nor local path",
			mutate:  func(c *Config) { c.Qdrant.URL = "" },
			wantErr: true,
		},
		{
			name:    "relative url",
			mutate:  func(c *Config) { c.Qdrant.URL = "localhost" },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "word2vec" },
			wantErr: true,
		},
		{
			name:   "gemini provider",
			mutate: func(c *Config) { c.Embedding.Provider = ProviderGemini },
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.Embedding.Model = "" },
			wantErr: true,
		},
		{
			name:    "negative vector size",
			mutate:  func(c *Config) { c.Embedding.VectorSize = -1 },
			wantErr: true,
		},
		{
			name:    "zero search limit",
			mutate:  func(c *Config) { c.Qdrant.SearchLimit = 0 },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Qdrant.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "unknown output format",
			mutate:  func(c *Config) { c.Qdrant.OutputFormat = "xml" },
			wantErr: true,
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Server.Transport = "websocket" },
			wantErr: true,
		},
		{
			name: "sse with bad port",
			mutate: func(c *Config) {
				c.Server.Transport = TransportSSE
				c.Server.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "stdio ignores port",
			mutate: func(c *Config) {
				c.Server.Port = 0
			},
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.ServiceName = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestQdrantConfig_HasDefaultCollection(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.Qdrant.HasDefaultCollection())

	cfg.Qdrant.CollectionName = "notes"
	assert.True(t, cfg.Qdrant.HasDefaultCollection())
}
