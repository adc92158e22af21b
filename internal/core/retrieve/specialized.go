package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Intent keyword sets for the cloud-product domain. A query matching one of
// these sets marks an intent; chunks echoing the intent get boosted.
var (
	pricingKeywords    = []string{"price", "pricing", "cost", "costs", "billing", "tariff", "fee", "cheap", "expensive"}
	comparisonKeywords = []string{"compare", "comparison", "versus", "vs", "difference", "better", "alternative"}
)

// DefaultAbbreviations maps cloud-domain shorthand to canonical names.
var DefaultAbbreviations = map[string]string{
	"vm":  "virtual machine",
	"k8s": "kubernetes",
	"db":  "database",
	"lb":  "load balancer",
	"s3":  "object storage",
	"gpu": "graphics processor",
	"cdn": "content delivery network",
}

// Specialized wraps a base retriever with domain knowledge: recognized
// abbreviations are rewritten to "alias (canonical)" before delegation, and
// chunks matching the detected query intent get their score multiplied.
type Specialized struct {
	base          Retriever
	abbreviations map[string]string
	intentBoost   float64
}

func NewSpecialized(base Retriever, abbreviations map[string]string, intentBoost float64) *Specialized {
	if len(abbreviations) == 0 {
		abbreviations = DefaultAbbreviations
	}
	if intentBoost <= 0 {
		intentBoost = 1.2
	}
	return &Specialized{
		base:          base,
		abbreviations: abbreviations,
		intentBoost:   intentBoost,
	}
}

func (r *Specialized) Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	rewritten := r.rewriteAbbreviations(query)

	chunks, err := r.base.Retrieve(ctx, rewritten, limit)
	if err != nil {
		return nil, err
	}

	intents := detectIntents(query)
	if len(intents) == 0 {
		return chunks, nil
	}

	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		boosted := chunk
		if chunkMatchesIntent(chunk.Text, intents) {
			boosted = chunk.WithSignal("intent_boost", r.intentBoost)
			boosted.Score = chunk.Score * r.intentBoost
		}
		out = append(out, boosted)
	}
	domain.SortRanked(out)
	return out, nil
}

// rewriteAbbreviations expands known shorthand in place, token by token,
// keeping the alias so exact-match retrieval still works.
func (r *Specialized) rewriteAbbreviations(query string) string {
	fields := strings.Fields(query)
	changed := false
	for i, field := range fields {
		token := strings.ToLower(strings.Trim(field, ".,;:!?"))
		canonical, ok := r.abbreviations[token]
		if !ok {
			continue
		}
		fields[i] = fmt.Sprintf("%s (%s)", field, canonical)
		changed = true
	}
	if !changed {
		return query
	}
	return strings.Join(fields, " ")
}

func detectIntents(query string) [][]string {
	lowered := " " + strings.ToLower(query) + " "
	var intents [][]string
	for _, set := range [][]string{pricingKeywords, comparisonKeywords} {
		for _, keyword := range set {
			if strings.Contains(lowered, " "+keyword+" ") {
				intents = append(intents, set)
				break
			}
		}
	}
	return intents
}

func chunkMatchesIntent(text string, intents [][]string) bool {
	lowered := strings.ToLower(text)
	for _, set := range intents {
		for _, keyword := range set {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
	}
	return false
}
