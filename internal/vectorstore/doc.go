// Package vectorstore stores points (vector plus JSON-like payload) in named
// collections and retrieves them by similarity or exact payload match.
//
// Two backends implement Store:
//
//   - QdrantStore talks to a Qdrant server over gRPC (QDRANT_URL).
//   - ChromemStore keeps an embedded chromem-go database on disk
//     (QDRANT_LOCAL_PATH).
//
// NewStore picks the backend from configuration:
//
//	store, err := vectorstore.NewStore(ctx, cfg.Qdrant, provider.Dimension(), logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Every backend failure matches ErrStorageUnavailable. Collections use cosine
// distance.
//
// # Observability
//
// Each operation opens an OpenTelemetry span and is counted and timed in the
// mcp_qdrant_vectorstore_* Prometheus metrics.
package vectorstore
