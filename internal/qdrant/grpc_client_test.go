package qdrant

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name   string
		config *ClientConfig
		check  func(t *testing.T, cfg *ClientConfig)
	}{
		{
			name:   "empty config gets all defaults",
			config: &ClientConfig{},
			check: func(t *testing.T, cfg *ClientConfig) {
				assert.Equal(t, "localhost", cfg.Host)
				assert.Equal(t, 6334, cfg.Port)
				assert.False(t, cfg.UseTLS)
				assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
				assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
				assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
			},
		},
		{
			name: "partial config preserves set values",
			config: &ClientConfig{
				Host:           "qdrant.example.com",
				Port:           6335,
				RequestTimeout: time.Second,
			},
			check: func(t *testing.T, cfg *ClientConfig) {
				assert.Equal(t, "qdrant.example.com", cfg.Host)
				assert.Equal(t, 6335, cfg.Port)
				assert.Equal(t, time.Second, cfg.RequestTimeout)
				assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.ApplyDefaults()
			tt.check(t, tt.config)
		})
	}
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr string
	}{
		{
			name:   "valid config",
			config: &ClientConfig{Host: "localhost", Port: 6334, MaxMessageSize: 1024},
		},
		{
			name:    "missing host",
			config:  &ClientConfig{Port: 6334, MaxMessageSize: 1024},
			wantErr: "host is required",
		},
		{
			name:    "port out of range",
			config:  &ClientConfig{Host: "localhost", Port: 70000, MaxMessageSize: 1024},
			wantErr: "invalid port",
		},
		{
			name:    "zero message size",
			config:  &ClientConfig{Host: "localhost", Port: 6334},
			wantErr: "invalid max message size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{name: "local REST port maps to gRPC", url: "http://localhost:6333", wantHost: "localhost", wantPort: 6334},
		{name: "no port", url: "http://qdrant", wantHost: "qdrant", wantPort: 6334},
		{name: "explicit gRPC port", url: "http://qdrant:7334/", wantHost: "qdrant", wantPort: 7334},
		{name: "https enables TLS", url: "https://xyz.cloud.qdrant.io:6333", wantHost: "xyz.cloud.qdrant.io", wantPort: 6334, wantTLS: true},
		{name: "ipv6", url: "http://[::1]:6334", wantHost: "::1", wantPort: 6334},
		{name: "unknown scheme", url: "ftp://qdrant:6334", wantErr: true},
		{name: "no host", url: "http://:6334", wantErr: true},
		{name: "bad port", url: "http://qdrant:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ConfigFromURL(tt.url, "key", 5*time.Second)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, cfg.Host)
			assert.Equal(t, tt.wantPort, cfg.Port)
			assert.Equal(t, tt.wantTLS, cfg.UseTLS)
			assert.Equal(t, "key", cfg.APIKey)
			assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
		})
	}
}

func TestNewGRPCClient_RequiresLogger(t *testing.T) {
	_, err := NewGRPCClient(DefaultClientConfig(), nil)
	assert.Error(t, err)
}

func TestNewGRPCClient_Lazy(t *testing.T) {
	// No server is listening; construction must still succeed.
	client, err := NewGRPCClient(&ClientConfig{Host: "127.0.0.1", Port: 1}, logging.NewNop())
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestConvertToQdrantPoint(t *testing.T) {
	point := &Point{
		ID:     "5c56c793-69f3-4fbf-87e6-c4bf54c28c26",
		Vector: []float32{0.1, 0.2, 0.3},
		Payload: map[string]any{
			"content":    "hello",
			"word_count": 2,
			"score":      0.5,
			"public":     true,
			"tags":       []any{"a", "b"},
			"nested":     map[string]any{"k": "v"},
		},
	}

	got, err := convertToQdrantPoint(point)
	require.NoError(t, err)
	assert.Equal(t, point.ID, got.GetId().GetUuid())
	assert.Equal(t, "hello", got.GetPayload()["content"].GetStringValue())
	assert.Equal(t, int64(2), got.GetPayload()["word_count"].GetIntegerValue())
	assert.Equal(t, 0.5, got.GetPayload()["score"].GetDoubleValue())
	assert.True(t, got.GetPayload()["public"].GetBoolValue())
	assert.Len(t, got.GetPayload()["tags"].GetListValue().GetValues(), 2)
	assert.Equal(t, "v", got.GetPayload()["nested"].GetStructValue().GetFields()["k"].GetStringValue())
}

func TestConvertToQdrantPoint_UnsupportedPayload(t *testing.T) {
	_, err := convertToQdrantPoint(&Point{
		ID:      "5c56c793-69f3-4fbf-87e6-c4bf54c28c26",
		Payload: map[string]any{"ch": make(chan int)},
	})
	assert.Error(t, err)
}

func TestConvertToQdrantFilter(t *testing.T) {
	t.Run("nil filter", func(t *testing.T) {
		f, err := convertToQdrantFilter(nil)
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("keyword, bool and int", func(t *testing.T) {
		f, err := convertToQdrantFilter(&Filter{Must: []Condition{
			{Field: "status", Match: "open"},
			{Field: "public", Match: true},
			{Field: "word_count", Match: 3},
		}})
		require.NoError(t, err)
		require.Len(t, f.GetMust(), 3)

		cond := f.GetMust()[0].GetField()
		assert.Equal(t, "status", cond.GetKey())
		assert.Equal(t, "open", cond.GetMatch().GetKeyword())
		assert.True(t, f.GetMust()[1].GetField().GetMatch().GetBoolean())
		assert.Equal(t, int64(3), f.GetMust()[2].GetField().GetMatch().GetInteger())
	})

	t.Run("unsupported match", func(t *testing.T) {
		_, err := convertToQdrantFilter(&Filter{Must: []Condition{{Field: "x", Match: 1.5}}})
		assert.Error(t, err)
	})
}

func TestExtractPayload(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"content": "hello",
		"count":   3,
		"ratio":   0.25,
		"ok":      false,
		"tags":    []any{"x", 1},
		"nested":  map[string]any{"inner": "value"},
		"missing": nil,
	})

	got := extractPayload(payload)
	assert.Equal(t, "hello", got["content"])
	assert.Equal(t, int64(3), got["count"])
	assert.Equal(t, 0.25, got["ratio"])
	assert.Equal(t, false, got["ok"])
	assert.Equal(t, []any{"x", int64(1)}, got["tags"])
	assert.Equal(t, map[string]any{"inner": "value"}, got["nested"])
	assert.Nil(t, got["missing"])

	assert.Empty(t, extractPayload(nil))
}

func TestExtractPointID(t *testing.T) {
	assert.Equal(t, "", extractPointID(nil))
	assert.Equal(t, "5c56c793-69f3-4fbf-87e6-c4bf54c28c26", extractPointID(qdrant.NewIDUUID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26")))
	assert.Equal(t, "42", extractPointID(qdrant.NewIDNum(42)))
}

func TestIsAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "already exists code", err: status.Error(codes.AlreadyExists, "exists"), want: true},
		{name: "invalid argument message", err: status.Error(codes.InvalidArgument, "Wrong input: Collection `notes` already exists!"), want: true},
		{name: "other invalid argument", err: status.Error(codes.InvalidArgument, "bad vector size"), want: false},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAlreadyExists(tt.err))
		})
	}
}
