package fusion

import (
	"sort"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Method selects how ranked lists are merged.
type Method string

const (
	// MethodRRF is rank-based reciprocal rank fusion, the default.
	MethodRRF Method = "rrf"
	// MethodWeighted is score-based weighted-sum fusion.
	MethodWeighted Method = "weighted"
	// MethodRoundRobin interleaves lists position by position. Fallback for
	// lists whose scores are not numerically comparable.
	MethodRoundRobin Method = "round_robin"
)

// DefaultRRFK damps the dominance of top-ranked items. Kept configurable;
// 60 follows the common RRF literature value.
const DefaultRRFK = 60

type Options struct {
	RRFK    int
	Weights []float64
}

// Fuse merges ranked lists with default options.
func Fuse(lists [][]domain.ScoredChunk, method Method) []domain.ScoredChunk {
	return FuseWith(lists, method, Options{})
}

// FuseWith merges several ranked lists into one, deduplicating by chunk key.
// The output is sorted descending by fused score with first-seen tie-break,
// and is empty (never an error) when every input list is empty or nil.
func FuseWith(lists [][]domain.ScoredChunk, method Method, opts Options) []domain.ScoredChunk {
	switch method {
	case MethodWeighted:
		return fuseWeighted(lists, opts.Weights)
	case MethodRoundRobin:
		return fuseRoundRobin(lists)
	default:
		return fuseRRF(lists, opts.RRFK)
	}
}

type fusedCandidate struct {
	chunk     domain.ScoredChunk
	score     float64
	firstSeen int
}

func fuseRRF(lists [][]domain.ScoredChunk, k int) []domain.ScoredChunk {
	if k <= 0 {
		k = DefaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	order := 0
	for _, list := range lists {
		for rank, chunk := range list {
			key := chunk.Key()
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{chunk: chunk, firstSeen: order}
				acc[key] = candidate
				order++
			}
			candidate.score += 1.0 / float64(k+rank+1)
		}
	}

	return collectCandidates(acc, "rrf")
}

func fuseWeighted(lists [][]domain.ScoredChunk, weights []float64) []domain.ScoredChunk {
	weights = normalizeWeights(weights, len(lists))

	byList := make([]map[string]float64, len(lists))
	for i, list := range lists {
		byList[i] = make(map[string]float64, len(list))
		for _, chunk := range list {
			if _, ok := byList[i][chunk.Key()]; !ok {
				byList[i][chunk.Key()] = chunk.Score
			}
		}
	}

	acc := make(map[string]*fusedCandidate)
	order := 0
	for _, list := range lists {
		for _, chunk := range list {
			key := chunk.Key()
			if _, ok := acc[key]; ok {
				continue
			}
			score := 0.0
			for i := range lists {
				listScore, present := byList[i][key]
				if !present {
					// A signal that never saw the chunk contributes a
					// neutral midpoint rather than zeroing it out.
					listScore = 0.5
				}
				score += weights[i] * listScore
			}
			acc[key] = &fusedCandidate{chunk: chunk, score: score, firstSeen: order}
			order++
		}
	}

	return collectCandidates(acc, "weighted")
}

func fuseRoundRobin(lists [][]domain.ScoredChunk) []domain.ScoredChunk {
	maxLen := 0
	total := 0
	for _, list := range lists {
		total += len(list)
		if len(list) > maxLen {
			maxLen = len(list)
		}
	}
	if total == 0 {
		return []domain.ScoredChunk{}
	}

	seen := make(map[string]struct{}, total)
	out := make([]domain.ScoredChunk, 0, total)
	for pos := 0; pos < maxLen; pos++ {
		for _, list := range lists {
			if pos >= len(list) {
				continue
			}
			chunk := list[pos]
			key := chunk.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			// Synthetic descending score so downstream stages can keep
			// relying on score order.
			fused := chunk.WithSignal("round_robin", chunk.Score)
			fused.Score = 1.0 / float64(len(out)+1)
			out = append(out, fused)
		}
	}
	return out
}

func collectCandidates(acc map[string]*fusedCandidate, signal string) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(acc))
	for _, candidate := range acc {
		chunk := candidate.chunk.WithSignal(signal, candidate.score)
		chunk.Score = candidate.score
		out = append(out, chunk)
	}

	firstSeen := make(map[string]int, len(acc))
	for key, candidate := range acc {
		firstSeen[key] = candidate.firstSeen
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return firstSeen[out[i].Key()] < firstSeen[out[j].Key()]
	})
	return out
}

func normalizeWeights(weights []float64, n int) []float64 {
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	sum := 0.0
	for i := 0; i < n && i < len(weights); i++ {
		if weights[i] > 0 {
			out[i] = weights[i]
			sum += weights[i]
		}
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
