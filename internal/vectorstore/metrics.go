package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Backend labels.
const (
	backendQdrant  = "qdrant"
	backendChromem = "chromem"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/mcp-server-qdrant/internal/vectorstore")

var (
	// OperationsTotal counts store operations.
	// Labels: backend (qdrant, chromem), operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_qdrant",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// OperationDuration tracks how long store operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcp_qdrant",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// CollectionsCreated counts collections created by this process.
	CollectionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_qdrant",
			Subsystem: "vectorstore",
			Name:      "collections_created_total",
			Help:      "Total number of collections created",
		},
		[]string{"backend"},
	)

	// PointsWritten counts points upserted.
	PointsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_qdrant",
			Subsystem: "vectorstore",
			Name:      "points_written_total",
			Help:      "Total number of points upserted",
		},
		[]string{"backend"},
	)
)

// startOperation opens a span for a store operation. The returned function
// ends the span and records the outcome in the Prometheus metrics.
func startOperation(ctx context.Context, backend, operation, collection string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "vectorstore."+operation)
	span.SetAttributes(
		attribute.String("db.system", backend),
		attribute.String("db.operation", operation),
	)
	if collection != "" {
		span.SetAttributes(attribute.String("db.collection", collection))
	}
	start := time.Now()

	return ctx, func(err error) {
		OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		OperationsTotal.WithLabelValues(backend, operation, result).Inc()
		span.End()
	}
}
