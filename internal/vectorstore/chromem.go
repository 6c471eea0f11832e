package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// payloadKey is the chromem metadata key holding the JSON-encoded payload.
// Other metadata keys hold the payload's string fields for filtering.
const payloadKey = "_payload"

// collectionsFile sits at the database root and records the vector size of
// every collection. chromem-go skips plain files there when loading.
const collectionsFile = "collections.json"

// errNoEmbedding is returned by the collection embedding function. Vectors
// are always supplied by the caller.
var errNoEmbedding = errors.New("chromem store does not embed text")

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. A leading ~ is expanded.
	Path string

	// Compress enables gzip compression for stored documents.
	Compress bool

	// VectorSize is the dimension of collections this process creates. It
	// is also the probe size for Scroll on collections with no recorded size.
	VectorSize int
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: local path required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is a Store backed by an embedded chromem-go database, used
// when the server runs against a local path instead of a Qdrant server.
//
// chromem-go scores by cosine similarity and filters on exact string
// metadata matches, which is all the server needs.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	path   string
	logger *logging.Logger

	// mu serializes collection creation and writes to collectionsFile.
	mu sync.Mutex
	// sizes holds the vector size of every collection with a recorded size.
	sizes sync.Map
}

// collectionInfo is the persisted description of a collection.
type collectionInfo struct {
	Distance   string `json:"distance"`
	VectorSize int    `json:"vector_size"`
}

// NewChromemStore opens (or creates) the database at config.Path.
func NewChromemStore(config ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %w", ErrStorageUnavailable, path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem database at %s: %w", ErrStorageUnavailable, path, err)
	}

	infos, err := readCollectionInfos(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrStorageUnavailable, collectionsFile, err)
	}

	s := &ChromemStore{db: db, config: config, path: path, logger: logger}
	for name, info := range infos {
		if info.VectorSize > 0 {
			s.sizes.Store(name, info.VectorSize)
		}
	}

	logger.Info(context.Background(), "opened local vector store",
		zap.String("path", path),
		zap.Int("collections", len(db.ListCollections())),
		zap.Int("vector_size", config.VectorSize))

	return s, nil
}

// readCollectionInfos loads collectionsFile from dir. A missing file yields
// an empty map.
func readCollectionInfos(dir string) (map[string]collectionInfo, error) {
	infos := make(map[string]collectionInfo)
	data, err := os.ReadFile(filepath.Join(dir, collectionsFile))
	if errors.Is(err, os.ErrNotExist) {
		return infos, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// recordCollection adds name to collectionsFile. Callers hold s.mu.
func (s *ChromemStore) recordCollection(name string, info collectionInfo) error {
	infos, err := readCollectionInfos(s.path)
	if err != nil {
		return err
	}
	infos[name] = info
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.path, collectionsFile+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.path, collectionsFile))
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

func (s *ChromemStore) collection(name string) *chromem.Collection {
	// A non-nil embedding func keeps chromem from installing its OpenAI
	// default on collections loaded from disk.
	return s.db.GetCollection(name, noEmbedding)
}

func (s *ChromemStore) vectorSize(name string) int {
	if size, ok := s.sizes.Load(name); ok {
		return size.(int)
	}
	return s.config.VectorSize
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, name string) (exists bool, err error) {
	_, done := startOperation(ctx, backendChromem, "collection_exists", name)
	defer func() { done(err) }()

	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	return s.collection(name) != nil, nil
}

// CreateCollection creates a collection.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, vectorSize int) (err error) {
	ctx, done := startOperation(ctx, backendChromem, "create_collection", name)
	defer func() { done(err) }()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, vectorSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collection(name) != nil {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	info := collectionInfo{Distance: "cosine", VectorSize: vectorSize}
	metadata := map[string]string{"distance": info.Distance, "vector_size": strconv.Itoa(vectorSize)}
	if _, err := s.db.CreateCollection(name, metadata, noEmbedding); err != nil {
		return unavailable("creating collection "+name, err)
	}
	s.sizes.Store(name, vectorSize)
	if err := s.recordCollection(name, info); err != nil {
		return unavailable("recording collection "+name, err)
	}

	CollectionsCreated.WithLabelValues(backendChromem).Inc()
	s.logger.Info(ctx, "created local collection",
		zap.String("collection", name),
		zap.Int("vector_size", vectorSize))
	return nil
}

// ListCollections returns all collection names, sorted.
func (s *ChromemStore) ListCollections(ctx context.Context) (names []string, err error) {
	_, done := startOperation(ctx, backendChromem, "list_collections", "")
	defer func() { done(err) }()

	collections := s.db.ListCollections()
	names = make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Upsert writes points to the collection and persists them.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []Point) (err error) {
	ctx, done := startOperation(ctx, backendChromem, "upsert", collection)
	defer func() { done(err) }()

	c := s.collection(collection)
	if c == nil {
		return unavailable("upserting into "+collection, fmt.Errorf("collection %s not found", collection))
	}

	want, known := s.sizes.Load(collection)
	for _, p := range points {
		if known && len(p.Vector) != want.(int) {
			return unavailable("upserting into "+collection,
				fmt.Errorf("vector has %d dimensions, collection expects %d", len(p.Vector), want.(int)))
		}

		doc, err := toChromemDocument(p)
		if err != nil {
			return err
		}
		if err := c.AddDocument(ctx, doc); err != nil {
			return unavailable("upserting into "+collection, err)
		}
	}

	PointsWritten.WithLabelValues(backendChromem).Add(float64(len(points)))
	return nil
}

// Query returns up to limit nearest points.
func (s *ChromemStore) Query(ctx context.Context, collection string, vector []float32, limit int) (points []Point, err error) {
	ctx, done := startOperation(ctx, backendChromem, "query", collection)
	defer func() { done(err) }()

	return s.query(ctx, collection, vector, limit, nil, true)
}

// Scroll returns up to limit points whose payload field equals the match
// value. chromem has no scroll primitive, so this is a filtered query with a
// fixed probe vector; the order carries no meaning.
func (s *ChromemStore) Scroll(ctx context.Context, collection string, filter Match, limit int) (points []Point, err error) {
	ctx, done := startOperation(ctx, backendChromem, "scroll", collection)
	defer func() { done(err) }()

	if filter.Key == payloadKey {
		return []Point{}, nil
	}
	probe := make([]float32, s.vectorSize(collection))
	probe[0] = 1
	return s.query(ctx, collection, probe, limit, map[string]string{filter.Key: filter.Value}, false)
}

func (s *ChromemStore) query(ctx context.Context, collection string, vector []float32, limit int, where map[string]string, scored bool) ([]Point, error) {
	c := s.collection(collection)
	if c == nil {
		return nil, unavailable("querying "+collection, fmt.Errorf("collection %s not found", collection))
	}

	// chromem rejects n larger than the collection.
	n := min(limit, c.Count())
	if n <= 0 {
		return []Point{}, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, unavailable("querying "+collection, err)
	}

	points := make([]Point, 0, len(results))
	for _, r := range results {
		payload, err := decodePayload(r.Metadata[payloadKey])
		if err != nil {
			s.logger.Warn(ctx, "skipping point with unreadable payload",
				zap.String("collection", collection),
				zap.String("id", r.ID),
				zap.Error(err))
			continue
		}
		p := Point{ID: r.ID, Payload: payload}
		if scored {
			p.Score = r.Similarity
		}
		points = append(points, p)
	}
	return points, nil
}

// Close is a no-op; chromem-go persists every write immediately.
func (s *ChromemStore) Close() error {
	return nil
}

// toChromemDocument stores the payload as JSON and copies its string fields
// into metadata so they can be matched exactly.
func toChromemDocument(p Point) (chromem.Document, error) {
	encoded, err := json.Marshal(p.Payload)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("encoding payload of point %s: %w", p.ID, err)
	}

	metadata := make(map[string]string, len(p.Payload)+1)
	for k, v := range p.Payload {
		if str, ok := v.(string); ok {
			metadata[k] = str
		}
	}
	metadata[payloadKey] = string(encoded)

	content, _ := p.Payload["content"].(string)
	return chromem.Document{
		ID:        p.ID,
		Metadata:  metadata,
		Embedding: append([]float32(nil), p.Vector...),
		Content:   content,
	}, nil
}

// decodePayload restores a payload written by toChromemDocument. Integral
// numbers decode as int64 and the rest as float64, as Qdrant returns them.
func decodePayload(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return map[string]any{}, nil
	}
	for k, v := range payload {
		payload[k] = normalizeNumbers(v)
	}
	return payload, nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeNumbers(inner)
		}
		return val
	default:
		return v
	}
}
