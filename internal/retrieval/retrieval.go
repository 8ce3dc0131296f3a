// Package retrieval exposes similarity search over document collections.
// The engine consumes it only through the Gateway interface; concrete
// backends are a qdrant vector store and an in-memory store for offline use.
package retrieval

import "context"

// Chunk is one retrieved piece of a document.
type Chunk struct {
	ID         string         `json:"chunkId"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Gateway is the knowledge-base search capability consumed by knowledge
// nodes. Implementations return at most topK chunks; chunks scoring below
// threshold are excluded. An empty result is not an error.
type Gateway interface {
	Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]Chunk, error)
	Close() error
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}
