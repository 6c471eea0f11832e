// Package qdrant is a thin gRPC client for the Qdrant vector database.
package qdrant

import (
	"context"
)

// Client is the subset of the Qdrant API the server uses.
type Client interface {
	// Collection operations
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)

	// Point operations
	Upsert(ctx context.Context, collection string, points []*Point) error
	Query(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error)
	Scroll(ctx context.Context, collection string, filter *Filter, limit uint32) ([]*Point, error)

	// Health
	Health(ctx context.Context) error

	// Close closes the client connection
	Close() error
}

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint represents a search result with score.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter selects points whose payload satisfies every Must condition.
type Filter struct {
	Must []Condition
}

// Condition is an exact match on a payload field. Match may be a string,
// bool or integer.
type Condition struct {
	Field string
	Match any
}
