package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// Decompose splits a compound question into independent sub-queries, each
// tagged with the retrieval strategy that should serve it. Sub-queries are
// returned in the Result, never stored on the instance.
type Decompose struct {
	generator ports.Generator
	maxSub    int
}

func NewDecompose(generator ports.Generator, maxSub int) *Decompose {
	if maxSub <= 0 {
		maxSub = 4
	}
	return &Decompose{generator: generator, maxSub: maxSub}
}

func (t *Decompose) Transform(ctx context.Context, query string) (Result, error) {
	prompt := fmt.Sprintf(
		"Break the question below into at most %d independent sub-questions. "+
			"For each, pick the best retrieval strategy: vector for conceptual questions, "+
			"keyword for exact names or codes, hybrid when unsure. "+
			"Reply with one line per sub-question in the form:\n"+
			"sub-question | strategy\n\nQuestion: %s",
		t.maxSub, query,
	)

	raw, err := t.generator.Complete(ctx, prompt)
	if err != nil {
		return identity(query), domain.WrapError(domain.ErrTransformFailed, "decompose query", err)
	}

	return Result{
		Query:      query,
		SubQueries: parseSubQueries(raw, t.maxSub),
	}, nil
}

// parseSubQueries reads "sub-question | strategy" lines. Malformed lines are
// skipped; an unknown strategy falls back to vector.
func parseSubQueries(raw string, maxSub int) []domain.QueryVariant {
	var out []domain.QueryVariant
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}

		text := line
		strategy := domain.StrategyVector
		if idx := strings.LastIndex(line, "|"); idx >= 0 {
			text = strings.TrimSpace(line[:idx])
			strategy = normalizeStrategy(line[idx+1:])
		}
		if text == "" {
			continue
		}

		out = append(out, domain.QueryVariant{Text: text, Strategy: strategy})
		if len(out) >= maxSub {
			break
		}
	}
	return out
}

func normalizeStrategy(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case domain.StrategyKeyword:
		return domain.StrategyKeyword
	case domain.StrategyHybrid:
		return domain.StrategyHybrid
	default:
		return domain.StrategyVector
	}
}
