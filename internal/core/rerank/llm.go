package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

const (
	defaultBatchSize  = 5
	judgmentTextLimit = 400
)

// scoreLinePattern matches "3: 7" / "3. 7.5" judgment lines.
var scoreLinePattern = regexp.MustCompile(`^\s*(\d+)\s*[:.]\s*(\d+(?:\.\d+)?)\s*$`)

// LLM asks the generation model to judge chunk relevance on a 0-10 scale,
// one prompt per batch, and normalizes parsed scores to [0,1]. Chunks whose
// score the model failed to report keep their prior score.
type LLM struct {
	generator ports.Generator
	batchSize int
}

func NewLLM(generator ports.Generator, batchSize int) *LLM {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &LLM{generator: generator, batchSize: batchSize}
}

func (r *LLM) Rerank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	out := make([]domain.ScoredChunk, len(chunks))
	copy(out, chunks)

	judgedAny := false
	for start := 0; start < len(out); start += r.batchSize {
		end := start + r.batchSize
		if end > len(out) {
			end = len(out)
		}
		batch := out[start:end]

		response, err := r.generator.Complete(ctx, buildJudgmentPrompt(query, batch))
		if err != nil {
			slog.Warn("llm_rerank_batch_failed", "batch_start", start, "error", err)
			continue
		}

		for idx, score := range parseJudgmentScores(response, len(batch)) {
			judged := batch[idx].WithSignal("llm_judgment", score)
			judged.Score = score
			batch[idx] = judged
			judgedAny = true
		}
	}
	if !judgedAny {
		return chunks, nil
	}

	domain.SortRanked(out)
	return domain.TruncateRanked(out, normalizeTopK(topK, len(out))), nil
}

func buildJudgmentPrompt(query string, batch []domain.ScoredChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rate how relevant each passage is to the query on a scale of 0 to 10.\n")
	fmt.Fprintf(&b, "Reply with one line per passage, exactly in the form \"index: score\".\n\n")
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", query)
	for i, chunk := range batch {
		text := chunk.Text
		if runes := []rune(text); len(runes) > judgmentTextLimit {
			text = string(runes[:judgmentTextLimit])
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	return b.String()
}

// parseJudgmentScores maps 0-based batch index to the normalized score for
// every line it can parse. Out-of-range indices and unparsable lines are
// dropped silently; those chunks keep their prior score.
func parseJudgmentScores(response string, batchLen int) map[int]float64 {
	scores := make(map[int]float64, batchLen)
	for _, line := range strings.Split(response, "\n") {
		match := scoreLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil || index < 1 || index > batchLen {
			continue
		}
		raw, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		score := raw / 10.0
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[index-1] = score
	}
	return scores
}
