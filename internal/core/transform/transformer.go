package transform

import (
	"context"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Result is the outcome of one transformation. Decomposing transformers
// return their sub-queries here instead of keeping per-call state, so a
// single instance is safe to share across concurrent requests.
type Result struct {
	Query      string
	SubQueries []domain.QueryVariant
}

// Transformer rewrites a query before retrieval.
type Transformer interface {
	Transform(ctx context.Context, query string) (Result, error)
}

func identity(query string) Result {
	return Result{Query: query}
}
