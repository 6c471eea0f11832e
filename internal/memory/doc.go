// Package memory stores and retrieves notes in a vector store.
//
// A Connector ties an embeddings.Provider to a vectorstore.Store. Notes are
// kept as Entries: the embedded content plus free-form metadata, flattened
// into the point payload so any metadata field can be matched exactly.
//
// # Usage
//
//	conn, err := memory.NewConnector(store, provider, memory.Config{
//	    DefaultCollection: "notes",
//	    SearchLimit:       10,
//	}, logger)
//
//	err = conn.Store(ctx, memory.Entry{
//	    Content:  "The deploy key lives in vault",
//	    Metadata: map[string]any{"status": "open"},
//	}, "")
//
//	entries, err := conn.Search(ctx, "where is the deploy key", "", 5)
//	entries, err = conn.SearchByMetadata(ctx, "status", "open", "", 5)
//
// Collections are created on first store, sized to the provider's
// dimension. Searching a collection that does not exist returns no entries
// rather than an error.
package memory
