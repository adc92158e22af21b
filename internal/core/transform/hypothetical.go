package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// Hypothetical implements HyDE: the generation model writes a passage that
// would answer the query, and that passage becomes the retrieval text. A
// hypothetical answer usually lands closer to real chunks in embedding space
// than the question itself.
type Hypothetical struct {
	generator ports.Generator
	maxChars  int
}

func NewHypothetical(generator ports.Generator, maxChars int) *Hypothetical {
	if maxChars <= 0 {
		maxChars = 600
	}
	return &Hypothetical{generator: generator, maxChars: maxChars}
}

func (t *Hypothetical) Transform(ctx context.Context, query string) (Result, error) {
	prompt := fmt.Sprintf(
		"Write a short factual passage that directly answers the question below, "+
			"as it would appear in a documentation page. Do not mention the question. "+
			"Keep it under %d characters.\n\nQuestion: %s",
		t.maxChars, query,
	)

	passage, err := t.generator.Complete(ctx, prompt)
	if err != nil {
		return identity(query), domain.WrapError(domain.ErrTransformFailed, "hypothetical document", err)
	}
	passage = strings.TrimSpace(passage)
	if passage == "" {
		return identity(query), nil
	}
	if runes := []rune(passage); len(runes) > t.maxChars {
		passage = string(runes[:t.maxChars])
	}
	return Result{Query: passage}, nil
}
