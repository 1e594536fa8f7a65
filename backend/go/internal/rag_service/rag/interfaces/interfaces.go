package interfaces

import (
	"context"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"
)

// Loader extracts documents from one file format.
// It returns an error for unreadable input; the registry turns that into an empty result.
type Loader interface {
	Load(ctx context.Context, path string) ([]*schema.Document, error)
}

// DocumentLoader resolves a file reference to documents. It never fails:
// unsupported or corrupt input yields an empty slice.
type DocumentLoader interface {
	Load(ctx context.Context, ref string) []*schema.Document
}

// Splitter splits documents into overlapping chunks.
type Splitter interface {
	Split(ctx context.Context, docs []*schema.Document) ([]*schema.Chunk, error)
}

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Answerer generates text from a prompt.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorStore is the shared similarity index over embedded chunks.
type VectorStore interface {
	Add(ctx context.Context, chunks []*schema.Chunk) error
	Search(ctx context.Context, query string, k int) ([]*schema.ScoredChunk, error)
	Len() int
}

// Resolver is implemented by document loaders that can also explain an empty result.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]*schema.Document, error)
}
