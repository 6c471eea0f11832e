package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "disabled skips validation", mutate: func(c *Config) { c.Enabled = false; c.Endpoint = "" }},
		{name: "local grpc", mutate: func(c *Config) {}},
		{name: "local http", mutate: func(c *Config) { c.Protocol = ProtocolHTTP; c.Endpoint = "http://127.0.0.1:4318" }},
		{name: "ipv6 loopback", mutate: func(c *Config) { c.Endpoint = "[::1]:4317" }},
		{name: "remote insecure", mutate: func(c *Config) { c.Endpoint = "collector.example.com:4317" }, wantErr: true},
		{name: "remote tls", mutate: func(c *Config) { c.Endpoint = "collector.example.com:4317"; c.Insecure = false }},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: true},
		{name: "unknown protocol", mutate: func(c *Config) { c.Protocol = "thrift" }, wantErr: true},
		{name: "bad sample rate", mutate: func(c *Config) { c.SampleRate = 1.5 }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.ExportInterval = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Protocol:    ProtocolHTTP,
		Insecure:    true,
		ServiceName: "qdrant-memory",
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "qdrant-memory", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.NoError(t, cfg.Validate())
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = ""

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_WithInjectedExporters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.ExportInterval = time.Hour

	spans := tracetest.NewInMemoryExporter()
	metricExp := &discardExporter{}

	tel, err := New(context.Background(), cfg, WithTraceExporter(spans), WithMetricExporter(metricExp))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer("test").Start(context.Background(), "op")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	require.Len(t, spans.GetSpans(), 1)
	assert.Equal(t, "op", spans.GetSpans()[0].Name)
	assert.False(t, tel.Health().Healthy)
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "qdrant.query")
	span.SetAttributes(attribute.String("collection", "notes"), attribute.Int("limit", 5))
	span.End()

	tt.AssertSpanExists(t, "qdrant.query")
	tt.AssertSpanAttribute(t, "qdrant.query", "collection", "notes")
	tt.AssertSpanAttribute(t, "qdrant.query", "limit", int64(5))

	counter, err := tt.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(ctx, 1)
	assert.Contains(t, tt.MetricNames(ctx), "test.counter")
}

// discardExporter is a metric exporter that drops everything.
type discardExporter struct{}

func (discardExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return cumulative(k)
}

func (discardExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (discardExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }
func (discardExporter) ForceFlush(context.Context) error                         { return nil }
func (discardExporter) Shutdown(context.Context) error                           { return nil }
