package embeddings

import "strings"

// fastEmbedModel describes a model bundled with fastembed-go.
type fastEmbedModel struct {
	// id is the fastembed-go EmbeddingModel value.
	id        string
	dimension int
}

// fastEmbedModels maps accepted model names to fastembed-go models. Both the
// Hugging Face names and fastembed's own identifiers are accepted.
var fastEmbedModels = map[string]fastEmbedModel{
	"BAAI/bge-small-en-v1.5":                 {id: "fast-bge-small-en-v1.5", dimension: 384},
	"BAAI/bge-small-en":                      {id: "fast-bge-small-en", dimension: 384},
	"BAAI/bge-base-en-v1.5":                  {id: "fast-bge-base-en-v1.5", dimension: 768},
	"BAAI/bge-base-en":                       {id: "fast-bge-base-en", dimension: 768},
	"BAAI/bge-small-zh-v1.5":                 {id: "fast-bge-small-zh-v1.5", dimension: 512},
	"sentence-transformers/all-MiniLM-L6-v2": {id: "fast-all-MiniLM-L6-v2", dimension: 384},
	"fast-bge-small-en-v1.5":                 {id: "fast-bge-small-en-v1.5", dimension: 384},
	"fast-bge-small-en":                      {id: "fast-bge-small-en", dimension: 384},
	"fast-bge-base-en-v1.5":                  {id: "fast-bge-base-en-v1.5", dimension: 768},
	"fast-bge-base-en":                       {id: "fast-bge-base-en", dimension: 768},
	"fast-bge-small-zh-v1.5":                 {id: "fast-bge-small-zh-v1.5", dimension: 512},
	"fast-all-MiniLM-L6-v2":                  {id: "fast-all-MiniLM-L6-v2", dimension: 384},
}

// lookupFastEmbedModel resolves a model name, ignoring case.
func lookupFastEmbedModel(name string) (fastEmbedModel, bool) {
	if m, ok := fastEmbedModels[name]; ok {
		return m, true
	}
	for k, m := range fastEmbedModels {
		if strings.EqualFold(k, name) {
			return m, true
		}
	}
	return fastEmbedModel{}, false
}

// FastEmbedDimension returns the vector size of a supported fastembed model.
func FastEmbedDimension(model string) (int, bool) {
	m, ok := lookupFastEmbedModel(model)
	return m.dimension, ok
}

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model is a Hugging Face or fastembed model name.
	Model string
	// CacheDir is where model files are downloaded.
	// Defaults to ~/.cache/mcp-server-qdrant/models
	CacheDir string
	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
	// ONNXVersion is downloaded when no ONNX runtime is installed.
	ONNXVersion string
}
