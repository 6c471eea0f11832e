package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/qdrant"
	"go.uber.org/zap"
)

// QdrantStore is a Store backed by a Qdrant server.
type QdrantStore struct {
	client qdrant.Client
	logger *logging.Logger
}

// NewQdrantStore wraps a Qdrant client. The store owns the client and closes
// it on Close.
func NewQdrantStore(client qdrant.Client, logger *logging.Logger) *QdrantStore {
	return &QdrantStore{client: client, logger: logger}
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (exists bool, err error) {
	ctx, done := startOperation(ctx, backendQdrant, "collection_exists", name)
	defer func() { done(err) }()

	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	exists, err = s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, unavailable("checking collection "+name, err)
	}
	return exists, nil
}

// CreateCollection creates a cosine collection.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, vectorSize int) (err error) {
	ctx, done := startOperation(ctx, backendQdrant, "create_collection", name)
	defer func() { done(err) }()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, vectorSize)
	}

	if err := s.client.CreateCollection(ctx, name, uint64(vectorSize)); err != nil {
		if errors.Is(err, qdrant.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrCollectionExists, name)
		}
		return unavailable("creating collection "+name, err)
	}

	CollectionsCreated.WithLabelValues(backendQdrant).Inc()
	s.logger.Info(ctx, "created qdrant collection",
		zap.String("collection", name),
		zap.Int("vector_size", vectorSize))
	return nil
}

// ListCollections returns all collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) (names []string, err error) {
	ctx, done := startOperation(ctx, backendQdrant, "list_collections", "")
	defer func() { done(err) }()

	names, err = s.client.ListCollections(ctx)
	if err != nil {
		return nil, unavailable("listing collections", err)
	}
	return names, nil
}

// Upsert writes points and waits for Qdrant to apply them.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) (err error) {
	ctx, done := startOperation(ctx, backendQdrant, "upsert", collection)
	defer func() { done(err) }()

	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.Point, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	if err := s.client.Upsert(ctx, collection, qpoints); err != nil {
		return unavailable("upserting into "+collection, err)
	}

	PointsWritten.WithLabelValues(backendQdrant).Add(float64(len(points)))
	return nil
}

// Query returns up to limit nearest points.
func (s *QdrantStore) Query(ctx context.Context, collection string, vector []float32, limit int) (points []Point, err error) {
	ctx, done := startOperation(ctx, backendQdrant, "query", collection)
	defer func() { done(err) }()

	if limit <= 0 {
		return []Point{}, nil
	}

	results, err := s.client.Query(ctx, collection, vector, uint64(limit))
	if err != nil {
		return nil, unavailable("querying "+collection, err)
	}

	points = make([]Point, len(results))
	for i, r := range results {
		points[i] = Point{ID: r.ID, Payload: r.Payload, Score: r.Score}
	}
	return points, nil
}

// Scroll returns up to limit points whose payload field equals the match
// value.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, filter Match, limit int) (points []Point, err error) {
	ctx, done := startOperation(ctx, backendQdrant, "scroll", collection)
	defer func() { done(err) }()

	if limit <= 0 {
		return []Point{}, nil
	}

	results, err := s.client.Scroll(ctx, collection, &qdrant.Filter{
		Must: []qdrant.Condition{{Field: filter.Key, Match: filter.Value}},
	}, uint32(limit))
	if err != nil {
		return nil, unavailable("scrolling "+collection, err)
	}

	points = make([]Point, len(results))
	for i, r := range results {
		points[i] = Point{ID: r.ID, Payload: r.Payload}
	}
	return points, nil
}

// Close closes the Qdrant connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
