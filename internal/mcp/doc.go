// Package mcp exposes the memory connector as MCP tools.
//
// Three tools are registered:
//   - qdrant-store: remember a piece of information with optional metadata
//   - qdrant-find: semantic search over stored information
//   - qdrant-find-by-metadata: exact match on a metadata field
//
// When a default collection is configured, the collection_name argument is
// removed from every tool's input schema and the default is used instead.
// In read-only mode qdrant-store is not registered at all.
package mcp
