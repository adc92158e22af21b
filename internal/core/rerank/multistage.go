package rerank

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Composite score split between a stage's raw score and its rank position.
// Configurable defaults; the 0.7/0.3 split follows the original tuning.
const (
	DefaultScoreWeight = 0.7
	DefaultRankWeight  = 0.3
)

// MultiStage runs several rerankers concurrently and combines their
// independently-ordered outputs into one weighted composite score per chunk.
type MultiStage struct {
	stages      []Reranker
	weights     []float64
	scoreWeight float64
	rankWeight  float64
}

func NewMultiStage(stages []Reranker, weights []float64, scoreWeight, rankWeight float64) *MultiStage {
	if scoreWeight <= 0 && rankWeight <= 0 {
		scoreWeight = DefaultScoreWeight
		rankWeight = DefaultRankWeight
	}
	return &MultiStage{
		stages:      stages,
		weights:     normalizeStageWeights(weights, len(stages)),
		scoreWeight: scoreWeight,
		rankWeight:  rankWeight,
	}
}

func (r *MultiStage) Rerank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	if len(chunks) == 0 || len(r.stages) == 0 {
		return chunks, nil
	}

	stageLists := make([][]domain.ScoredChunk, len(r.stages))
	var g errgroup.Group
	for i, stage := range r.stages {
		g.Go(func() error {
			input := make([]domain.ScoredChunk, len(chunks))
			copy(input, chunks)
			list, err := stage.Rerank(ctx, query, input, len(chunks))
			if err != nil {
				slog.Warn("multistage_stage_failed", "stage", i, "error", err)
				return nil
			}
			stageLists[i] = list
			return nil
		})
	}
	_ = g.Wait()

	composite := make(map[string]float64, len(chunks))
	for j, list := range stageLists {
		if len(list) == 0 {
			continue
		}
		for rank, chunk := range list {
			rankFactor := 1.0 - float64(rank)/float64(len(list))
			composite[chunk.Key()] += r.weights[j] * (r.scoreWeight*chunk.Score + r.rankWeight*rankFactor)
		}
	}
	if len(composite) == 0 {
		return chunks, nil
	}

	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		score, ok := composite[chunk.Key()]
		if !ok {
			// Not surfaced by any stage; keep it ranked below judged chunks.
			score = 0
		}
		rescored := chunk.WithSignal("composite", score)
		rescored.Score = score
		out = append(out, rescored)
	}

	domain.SortRanked(out)
	return domain.TruncateRanked(out, normalizeTopK(topK, len(out))), nil
}

// normalizeStageWeights renormalizes to sum 1, defaulting to equal weights.
func normalizeStageWeights(weights []float64, n int) []float64 {
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	sum := 0.0
	for i := 0; i < n && i < len(weights); i++ {
		if weights[i] > 0 {
			out[i] = weights[i]
			sum += weights[i]
		}
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
