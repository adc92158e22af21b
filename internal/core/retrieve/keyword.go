package retrieve

import (
	"context"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "how": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "this": {}, "to": {}, "was": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {},
}

const (
	keywordFrequencyWeight = 0.6
	keywordCoverageWeight  = 0.4
)

// Keyword scores candidate chunks by literal term overlap: term frequency
// against chunk length plus coverage of the distinct query terms.
type Keyword struct {
	source         ports.ChunkSource
	filter         domain.SearchFilter
	candidateLimit int
}

func NewKeyword(source ports.ChunkSource, filter domain.SearchFilter, candidateLimit int) *Keyword {
	if candidateLimit <= 0 {
		candidateLimit = 500
	}
	return &Keyword{source: source, filter: filter, candidateLimit: candidateLimit}
}

func (r *Keyword) Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	limit = normalizeLimit(limit)

	terms := queryTerms(query)
	if len(terms) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	candidates, err := r.source.ListChunks(ctx, r.filter, r.candidateLimit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "list keyword candidates", err)
	}

	out := make([]domain.ScoredChunk, 0, len(candidates))
	for _, chunk := range candidates {
		score := scoreChunkByTerms(chunk.Text, terms)
		if score <= 0 {
			continue
		}
		scored := domain.ScoredChunk{Chunk: chunk, Score: score}
		out = append(out, scored.WithSignal("keyword", score))
	}

	domain.SortRanked(out)
	return domain.TruncateRanked(out, limit), nil
}

// queryTerms keeps lower-cased tokens longer than one rune, minus stop-words.
func queryTerms(query string) []string {
	tokens := tokenizeAlphaNum(query)
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if len(token) <= 1 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// scoreChunkByTerms counts substring occurrences so stems still match their
// inflections ("price" hits "pricing").
func scoreChunkByTerms(text string, terms []string) float64 {
	words := tokenizeAlphaNum(text)
	if len(words) == 0 {
		return 0
	}
	lowered := strings.ToLower(text)

	totalHits := 0
	matched := 0
	for _, term := range terms {
		hits := strings.Count(lowered, term)
		if hits > 0 {
			matched++
			totalHits += hits
		}
	}
	if matched == 0 {
		return 0
	}

	frequency := float64(totalHits) / float64(len(words))
	coverage := float64(matched) / float64(len(terms))
	return keywordFrequencyWeight*frequency + keywordCoverageWeight*coverage
}
