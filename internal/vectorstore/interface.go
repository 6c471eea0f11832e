package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for vector store operations.
var (
	// ErrStorageUnavailable wraps every failure reported by the backend:
	// unreachable server, timeouts, rejected writes.
	ErrStorageUnavailable = errors.New("vector storage unavailable")

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// maxCollectionNameLength matches Qdrant's limit.
const maxCollectionNameLength = 255

// Point is a stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
	// Score is the similarity to the query vector; zero for scrolled points.
	Score float32
}

// Match selects points whose payload field Key equals Value exactly.
type Match struct {
	Key   string
	Value string
}

// Store is the interface for vector storage operations.
type Store interface {
	// CollectionExists reports whether a collection exists. The error is
	// non-nil only when the check itself fails.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a collection of vectorSize-dimensional
	// vectors with cosine distance. It returns ErrCollectionExists if the
	// collection is already there.
	CreateCollection(ctx context.Context, name string, vectorSize int) error

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert writes points to an existing collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query returns up to limit points nearest to vector, most similar first.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]Point, error)

	// Scroll returns up to limit points matching filter. Vectors are not
	// returned.
	Scroll(ctx context.Context, collection string, filter Match, limit int) ([]Point, error)

	// Close releases the backend connection.
	Close() error
}

// ValidateCollectionName rejects names Qdrant would refuse.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if len(name) > maxCollectionNameLength {
		return fmt.Errorf("%w: collection name longer than %d bytes", ErrInvalidCollectionName, maxCollectionNameLength)
	}
	if strings.ContainsAny(name, "<>:\"/\\|?*\x00") || name == "." || name == ".." {
		return fmt.Errorf("%w: %q contains a forbidden character", ErrInvalidCollectionName, name)
	}
	return nil
}

// unavailable wraps a backend error so it matches ErrStorageUnavailable and
// still exposes the cause, including context errors.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
