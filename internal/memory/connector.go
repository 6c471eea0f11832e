package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/embeddings"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/vectorstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/mcp-server-qdrant/internal/memory"

// DefaultSearchLimit is used when neither the request nor the configuration
// sets a limit.
const DefaultSearchLimit = 10

// ErrNoCollection indicates a store request with no collection name and no
// configured default.
var ErrNoCollection = errors.New("no collection name provided and no default collection configured")

// Config configures a Connector.
type Config struct {
	// DefaultCollection is used when a request names no collection.
	DefaultCollection string

	// SearchLimit caps results when a request passes a non-positive limit.
	SearchLimit int
}

// Connector stores entries and searches them by similarity or metadata.
type Connector struct {
	store    vectorstore.Store
	provider embeddings.Provider
	config   Config
	logger   *logging.Logger

	tracer        trace.Tracer
	storeCounter  metric.Int64Counter
	searchCounter metric.Int64Counter
	resultsHist   metric.Int64Histogram
}

// NewConnector creates a Connector.
func NewConnector(store vectorstore.Store, provider embeddings.Provider, cfg Config, logger *logging.Logger) (*Connector, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}

	c := &Connector{
		store:    store,
		provider: provider,
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	c.initMetrics()
	return c, nil
}

func (c *Connector) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	c.storeCounter, err = meter.Int64Counter(
		"mcp_qdrant.memory.stores_total",
		metric.WithDescription("Total number of entries stored"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		c.logger.Warn(context.Background(), "failed to create store counter", zap.Error(err))
	}

	c.searchCounter, err = meter.Int64Counter(
		"mcp_qdrant.memory.searches_total",
		metric.WithDescription("Total number of searches"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		c.logger.Warn(context.Background(), "failed to create search counter", zap.Error(err))
	}

	c.resultsHist, err = meter.Int64Histogram(
		"mcp_qdrant.memory.search_results",
		metric.WithDescription("Number of entries returned per search"),
		metric.WithUnit("{entry}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		c.logger.Warn(context.Background(), "failed to create results histogram", zap.Error(err))
	}
}

// DefaultCollection returns the configured default collection, if any.
func (c *Connector) DefaultCollection() string {
	return c.config.DefaultCollection
}

// Store embeds the entry's content and writes it to the collection, creating
// the collection if needed. An empty collection selects the default.
func (c *Connector) Store(ctx context.Context, entry Entry, collection string) (err error) {
	collection = c.resolveCollection(collection)
	ctx, span := c.tracer.Start(ctx, "memory.Store")
	defer endSpan(span, &err)
	span.SetAttributes(attribute.String("collection", collection))

	if collection == "" {
		return ErrNoCollection
	}
	ctx = logging.WithCollection(ctx, collection)

	if err := c.ensureCollectionExists(ctx, collection); err != nil {
		return err
	}

	vectors, err := c.provider.EmbedDocuments(ctx, []string{entry.Content})
	if err != nil {
		return fmt.Errorf("embedding entry: %w", err)
	}

	id := uuid.NewString()
	if err := c.store.Upsert(ctx, collection, []vectorstore.Point{{
		ID:      id,
		Vector:  vectors[0],
		Payload: entry.Payload(),
	}}); err != nil {
		return fmt.Errorf("storing entry: %w", err)
	}

	if c.storeCounter != nil {
		c.storeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", collection)))
	}
	c.logger.Debug(ctx, "stored entry", zap.String("id", id), zap.Int("content_length", len(entry.Content)))
	return nil
}

// Search returns up to limit entries most similar to query. A missing
// collection yields no entries.
func (c *Connector) Search(ctx context.Context, query, collection string, limit int) (entries []Entry, err error) {
	collection = c.resolveCollection(collection)
	ctx, span := c.tracer.Start(ctx, "memory.Search")
	defer endSpan(span, &err)
	span.SetAttributes(attribute.String("collection", collection))

	exists, err := c.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Entry{}, nil
	}
	ctx = logging.WithCollection(ctx, collection)

	vector, err := c.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	points, err := c.store.Query(ctx, collection, vector, c.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	entries = toEntries(points)
	c.recordSearch(ctx, "similarity", collection, len(entries))
	return entries, nil
}

// SearchByMetadata returns up to limit entries whose metadata field key
// equals value exactly. A missing collection yields no entries.
func (c *Connector) SearchByMetadata(ctx context.Context, key, value, collection string, limit int) (entries []Entry, err error) {
	collection = c.resolveCollection(collection)
	ctx, span := c.tracer.Start(ctx, "memory.SearchByMetadata")
	defer endSpan(span, &err)
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("metadata_key", key),
	)

	exists, err := c.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Entry{}, nil
	}
	ctx = logging.WithCollection(ctx, collection)

	points, err := c.store.Scroll(ctx, collection, vectorstore.Match{Key: key, Value: value}, c.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("filtering %s by %s: %w", collection, key, err)
	}

	entries = toEntries(points)
	c.recordSearch(ctx, "metadata", collection, len(entries))
	return entries, nil
}

// ListCollectionNames returns the names of all collections in the store.
func (c *Connector) ListCollectionNames(ctx context.Context) ([]string, error) {
	return c.store.ListCollections(ctx)
}

// ensureCollectionExists creates the collection with the provider's
// dimension if it is missing. Losing a creation race to another writer is
// not an error.
func (c *Connector) ensureCollectionExists(ctx context.Context, name string) error {
	exists, err := c.store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = c.store.CreateCollection(ctx, name, c.provider.Dimension())
	if err == nil {
		c.logger.Info(ctx, "created collection", zap.Int("vector_size", c.provider.Dimension()))
		return nil
	}
	if errors.Is(err, vectorstore.ErrCollectionExists) {
		if exists, checkErr := c.store.CollectionExists(ctx, name); checkErr == nil && exists {
			return nil
		}
	}
	return fmt.Errorf("creating collection %s: %w", name, err)
}

// collectionExists treats an unresolved or invalid name as a missing
// collection.
func (c *Connector) collectionExists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	exists, err := c.store.CollectionExists(ctx, name)
	if errors.Is(err, vectorstore.ErrInvalidCollectionName) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return exists, nil
}

func (c *Connector) resolveCollection(name string) string {
	if name != "" {
		return name
	}
	return c.config.DefaultCollection
}

func (c *Connector) limit(limit int) int {
	if limit > 0 {
		return limit
	}
	return c.config.SearchLimit
}

func (c *Connector) recordSearch(ctx context.Context, kind, collection string, results int) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("collection", collection),
	)
	if c.searchCounter != nil {
		c.searchCounter.Add(ctx, 1, attrs)
	}
	if c.resultsHist != nil {
		c.resultsHist.Record(ctx, int64(results), attrs)
	}
	c.logger.Debug(ctx, "search completed", zap.String("kind", kind), zap.Int("results", results))
}

func toEntries(points []vectorstore.Point) []Entry {
	entries := make([]Entry, len(points))
	for i, p := range points {
		entries[i] = EntryFromPayload(p.Payload)
	}
	return entries
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
