package retrieve

import (
	"context"
	"strings"
	"unicode"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Retriever returns a ranked list of scored chunks for a query. Failures are
// surfaced to the caller unretried; the orchestrator decides what is fatal.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error)
}

const defaultLimit = 10

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// tokenizeAlphaNum lower-cases and splits on every non-alphanumeric rune.
func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
