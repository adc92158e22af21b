package retrieve

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/fusion"
	"github.com/kirillkom/retrieval-engine/internal/core/transform"
)

// MultiQuery expands a query into variants via a transformer, runs the base
// retriever once per variant concurrently, and fuses the lists. The original
// query is always the first variant.
type MultiQuery struct {
	base          Retriever
	transformer   transform.Transformer
	method        fusion.Method
	fusionOpts    fusion.Options
	maxQueries    int
	branchTimeout time.Duration
}

func NewMultiQuery(base Retriever, transformer transform.Transformer, method fusion.Method, opts fusion.Options, maxQueries int, branchTimeout time.Duration) *MultiQuery {
	if maxQueries <= 0 {
		maxQueries = 4
	}
	if branchTimeout <= 0 {
		branchTimeout = defaultBranchTimeout
	}
	return &MultiQuery{
		base:          base,
		transformer:   transformer,
		method:        method,
		fusionOpts:    opts,
		maxQueries:    maxQueries,
		branchTimeout: branchTimeout,
	}
}

func (r *MultiQuery) Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	limit = normalizeLimit(limit)

	variants := r.queryVariants(ctx, query)
	branches := make([]Retriever, len(variants))
	for i, variant := range variants {
		branches[i] = boundQuery{base: r.base, query: variant}
	}

	lists, errs := fanOut(ctx, branches, "", limit, r.branchTimeout)

	// Failed variants keep their slot as a nil list so list positions stay
	// aligned with variant order for weighted fusion.
	survivors := 0
	var firstErr error
	for i := range lists {
		if errs[i] != nil {
			slog.Warn("multiquery_variant_failed", "variant", variants[i], "error", errs[i])
			if firstErr == nil {
				firstErr = errs[i]
			}
			lists[i] = nil
			continue
		}
		survivors++
	}
	if survivors == 0 {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "multi-query retrieve", firstErr)
	}

	fused := fusion.FuseWith(lists, r.method, r.fusionOpts)
	return domain.TruncateRanked(fused, limit), nil
}

// queryVariants returns the original query plus transformer output, deduped
// and capped at maxQueries. Transformer failure degrades to the original
// query alone.
func (r *MultiQuery) queryVariants(ctx context.Context, query string) []string {
	variants := []string{query}
	if r.transformer == nil {
		return variants
	}

	result, err := r.transformer.Transform(ctx, query)
	if err != nil {
		slog.Warn("multiquery_transform_failed", "error", err)
		return variants
	}

	seen := map[string]struct{}{normalizeVariant(query): {}}
	appendVariant := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" || len(variants) >= r.maxQueries {
			return
		}
		key := normalizeVariant(text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, text)
	}

	appendVariant(result.Query)
	for _, sub := range result.SubQueries {
		appendVariant(sub.Text)
	}
	return variants
}

func normalizeVariant(s string) string {
	return strings.Join(tokenizeAlphaNum(s), " ")
}

// boundQuery adapts a (retriever, fixed query) pair to the fan-out helper,
// which feeds every branch the same query string.
type boundQuery struct {
	base  Retriever
	query string
}

func (b boundQuery) Retrieve(ctx context.Context, _ string, limit int) ([]domain.ScoredChunk, error) {
	return b.base.Retrieve(ctx, b.query, limit)
}
