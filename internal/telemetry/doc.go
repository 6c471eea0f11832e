// Package telemetry wires OpenTelemetry for mcp-server-qdrant.
//
// When enabled (OTEL_ENABLE=true) New installs a global TracerProvider and
// MeterProvider exporting over OTLP, gRPC by default or HTTP/protobuf when
// OTEL_EXPORTER_OTLP_PROTOCOL=http/protobuf. Instrumented packages obtain
// tracers and meters through otel.Tracer and otel.Meter, so they work
// unchanged with telemetry disabled.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	conn := memory.NewConnector(store, provider, memory.WithTracer(tt.Tracer("test")))
//	...
//	tt.AssertSpanExists(t, "memory.Store")
package telemetry
