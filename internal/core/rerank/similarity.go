package rerank

import (
	"context"
	"log/slog"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// Similarity rescores chunks by cosine similarity between the query
// embedding and each chunk embedding. Chunks that arrive without an
// embedding are embedded lazily in one batch call.
type Similarity struct {
	embedder ports.Embedder
}

func NewSimilarity(embedder ports.Embedder) *Similarity {
	return &Similarity{embedder: embedder}
}

func (r *Similarity) Rerank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("similarity_rerank_degraded", "stage", "embed_query", "error", err)
		return chunks, nil
	}

	embeddings, ok := r.chunkEmbeddings(ctx, chunks)
	if !ok {
		return chunks, nil
	}

	out := make([]domain.ScoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		score := cosineSimilarity(queryVector, embeddings[i])
		rescored := chunk.WithSignal("semantic", score)
		rescored.Score = score
		out = append(out, rescored)
	}

	domain.SortRanked(out)
	return domain.TruncateRanked(out, normalizeTopK(topK, len(out))), nil
}

func (r *Similarity) chunkEmbeddings(ctx context.Context, chunks []domain.ScoredChunk) ([][]float32, bool) {
	embeddings := make([][]float32, len(chunks))
	var missingTexts []string
	var missingIdx []int
	for i, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			embeddings[i] = chunk.Embedding
			continue
		}
		missingTexts = append(missingTexts, chunk.Text)
		missingIdx = append(missingIdx, i)
	}
	if len(missingTexts) == 0 {
		return embeddings, true
	}

	computed, err := r.embedder.Embed(ctx, missingTexts)
	if err != nil || len(computed) != len(missingTexts) {
		slog.Warn("similarity_rerank_degraded", "stage", "embed_chunks", "missing", len(missingTexts), "error", err)
		return nil, false
	}
	for j, i := range missingIdx {
		embeddings[i] = computed[j]
	}
	return embeddings, true
}
