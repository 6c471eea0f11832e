// Package embeddings turns text into dense vectors for the vector store.
//
// Three providers implement Provider:
//   - fastembed: local ONNX models via fastembed-go (requires cgo)
//   - sentence-transformers: an OpenAI-compatible embeddings endpoint serving
//     a sentence-transformers model, e.g. text-embeddings-inference
//   - gemini-transformer: Google Gemini embedding models
//
// NewProvider wraps the selected provider so every call is measured and every
// result is checked against Dimension before it reaches the vector store.
package embeddings
