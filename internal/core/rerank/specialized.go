package rerank

import (
	"context"
	"strings"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Boosts holds the multiplicative adjustments applied by the domain
// reranker. Zero values fall back to the defaults.
type Boosts struct {
	Pricing       float64
	Comparison    float64
	Configuration float64
	Entity        float64
}

func (b Boosts) withDefaults() Boosts {
	if b.Pricing <= 0 {
		b.Pricing = 1.2
	}
	if b.Comparison <= 0 {
		b.Comparison = 1.15
	}
	if b.Configuration <= 0 {
		b.Configuration = 1.1
	}
	if b.Entity <= 0 {
		b.Entity = 1.1
	}
	return b
}

var (
	rerankPricingKeywords       = []string{"price", "pricing", "cost", "billing", "tariff", "fee"}
	rerankComparisonKeywords    = []string{"compare", "comparison", "versus", "vs", "difference", "alternative"}
	rerankConfigurationKeywords = []string{"configure", "configuration", "setup", "install", "settings", "parameters"}
)

// Specialized wraps a base reranker with domain-specific multiplicative
// adjustments: intent echo, entity mention, and document recency.
type Specialized struct {
	base     Reranker
	boosts   Boosts
	entities []string
	now      func() time.Time
}

func NewSpecialized(base Reranker, boosts Boosts, entities []string) *Specialized {
	return &Specialized{
		base:     base,
		boosts:   boosts.withDefaults(),
		entities: entities,
		now:      time.Now,
	}
}

func (r *Specialized) Rerank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	ranked := chunks
	if r.base != nil {
		var err error
		ranked, err = r.base.Rerank(ctx, query, chunks, 0)
		if err != nil {
			ranked = chunks
		}
	}
	if len(ranked) == 0 {
		return ranked, nil
	}

	loweredQuery := strings.ToLower(query)
	intentBoost, intentKeywords := r.queryIntent(loweredQuery)
	queryEntities := r.mentionedEntities(loweredQuery)
	now := r.now()

	out := make([]domain.ScoredChunk, 0, len(ranked))
	for _, chunk := range ranked {
		boost := 1.0
		loweredText := strings.ToLower(chunk.Text)

		if intentBoost > 1 && containsAny(loweredText, intentKeywords) {
			boost *= intentBoost
		}
		if len(queryEntities) > 0 && containsAny(loweredText, queryEntities) {
			boost *= r.boosts.Entity
		}
		boost *= recencyBoost(now, chunk.Metadata.ModifiedAt)

		adjusted := chunk
		if boost != 1.0 {
			adjusted = chunk.WithSignal("domain_boost", boost)
			adjusted.Score = chunk.Score * boost
		}
		out = append(out, adjusted)
	}

	domain.SortRanked(out)
	return domain.TruncateRanked(out, normalizeTopK(topK, len(out))), nil
}

func (r *Specialized) queryIntent(loweredQuery string) (float64, []string) {
	switch {
	case containsAny(loweredQuery, rerankPricingKeywords):
		return r.boosts.Pricing, rerankPricingKeywords
	case containsAny(loweredQuery, rerankComparisonKeywords):
		return r.boosts.Comparison, rerankComparisonKeywords
	case containsAny(loweredQuery, rerankConfigurationKeywords):
		return r.boosts.Configuration, rerankConfigurationKeywords
	default:
		return 1.0, nil
	}
}

func (r *Specialized) mentionedEntities(loweredQuery string) []string {
	var out []string
	for _, entity := range r.entities {
		entity = strings.ToLower(entity)
		if entity != "" && strings.Contains(loweredQuery, entity) {
			out = append(out, entity)
		}
	}
	return out
}

// recencyBoost favors recently modified documents in tiers.
func recencyBoost(now, modified time.Time) float64 {
	if modified.IsZero() || modified.After(now) {
		return 1.0
	}
	age := now.Sub(modified)
	switch {
	case age <= 30*24*time.Hour:
		return 1.15
	case age <= 90*24*time.Hour:
		return 1.08
	case age <= 180*24*time.Hour:
		return 1.04
	default:
		return 1.0
	}
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
