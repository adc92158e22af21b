package transform

import (
	"context"
	"fmt"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// StepBack reformulates a narrow question into the broader question behind
// it, which retrieves the background chunks a too-specific query misses.
type StepBack struct {
	generator ports.Generator
}

func NewStepBack(generator ports.Generator) *StepBack {
	return &StepBack{generator: generator}
}

func (t *StepBack) Transform(ctx context.Context, query string) (Result, error) {
	prompt := fmt.Sprintf(
		"Given the specific question below, write the more general question one "+
			"step back from it. Reply with that question only, on one line.\n\nQuestion: %s",
		query,
	)

	general, err := t.generator.Complete(ctx, prompt)
	if err != nil {
		return identity(query), domain.WrapError(domain.ErrTransformFailed, "step-back reformulation", err)
	}

	general = firstLine(general)
	if general == "" {
		return identity(query), nil
	}
	return Result{Query: general}, nil
}
