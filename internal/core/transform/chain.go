package transform

import (
	"context"
	"log/slog"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Chain applies transformers sequentially, the output of each stage feeding
// the next. A failing stage aborts the chain and yields the original query:
// a degraded rewrite must never fail the request.
type Chain struct {
	stages []Transformer
}

func NewChain(stages ...Transformer) *Chain {
	return &Chain{stages: stages}
}

func (t *Chain) Transform(ctx context.Context, query string) (Result, error) {
	current := query
	var subQueries []domain.QueryVariant

	for i, stage := range t.stages {
		result, err := stage.Transform(ctx, current)
		if err != nil {
			slog.Warn("transform_chain_stage_failed", "stage", i, "error", err)
			return identity(query), nil
		}
		if result.Query != "" {
			current = result.Query
		}
		subQueries = append(subQueries, result.SubQueries...)
	}

	return Result{Query: current, SubQueries: subQueries}, nil
}
