package ports

import (
	"context"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Embedder builds vectors for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore owns the chunk corpus and performs similarity search.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
	Add(ctx context.Context, chunks []domain.Chunk) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

// Generator completes a prompt with the generation model. Used by LLM-judged
// rerankers and generative query transformers only.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChunkSource lists candidate chunks for lexical scoring.
type ChunkSource interface {
	ListChunks(ctx context.Context, filter domain.SearchFilter, limit int) ([]domain.Chunk, error)
}
