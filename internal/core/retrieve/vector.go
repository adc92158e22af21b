package retrieve

import (
	"context"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// Vector retrieves by embedding similarity against the vector store.
type Vector struct {
	embedder ports.Embedder
	store    ports.VectorStore
	filter   domain.SearchFilter
	minScore float64
}

func NewVector(embedder ports.Embedder, store ports.VectorStore, filter domain.SearchFilter, minScore float64) *Vector {
	return &Vector{
		embedder: embedder,
		store:    store,
		filter:   filter,
		minScore: minScore,
	}
}

func (r *Vector) Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	limit = normalizeLimit(limit)

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "embed query", err)
	}

	chunks, err := r.store.Search(ctx, queryVector, limit, r.filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "vector search", err)
	}

	if r.minScore <= 0 {
		return chunks, nil
	}
	out := chunks[:0:0]
	for _, chunk := range chunks {
		if chunk.Score >= r.minScore {
			out = append(out, chunk)
		}
	}
	return out, nil
}
