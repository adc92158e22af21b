package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// Expansion enriches the query with synonyms and related terms so lexical
// retrieval catches paraphrased content.
type Expansion struct {
	generator ports.Generator
}

func NewExpansion(generator ports.Generator) *Expansion {
	return &Expansion{generator: generator}
}

func (t *Expansion) Transform(ctx context.Context, query string) (Result, error) {
	prompt := fmt.Sprintf(
		"Rewrite the search query below by adding synonyms and closely related terms. "+
			"Keep every original term. Reply with the expanded query only, on one line.\n\nQuery: %s",
		query,
	)

	expanded, err := t.generator.Complete(ctx, prompt)
	if err != nil {
		return identity(query), domain.WrapError(domain.ErrTransformFailed, "expand query", err)
	}

	expanded = firstLine(expanded)
	if expanded == "" {
		return identity(query), nil
	}
	return Result{Query: expanded}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
