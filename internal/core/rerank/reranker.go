package rerank

import (
	"context"
	"math"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Reranker rescores an already-retrieved candidate list. Implementations
// must degrade on internal failure: log, return the input unchanged, and
// report no error, so a broken reranking signal never kills the request.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error)
}

func normalizeTopK(topK, n int) int {
	if topK <= 0 || topK > n {
		return n
	}
	return topK
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
