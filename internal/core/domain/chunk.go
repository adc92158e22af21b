package domain

import (
	"fmt"
	"sort"
	"time"
)

// ChunkMetadata carries descriptive attributes produced by the chunking stage.
type ChunkMetadata struct {
	Source     string            `json:"source,omitempty"`
	Title      string            `json:"title,omitempty"`
	Author     string            `json:"author,omitempty"`
	Category   string            `json:"category,omitempty"`
	CreatedAt  time.Time         `json:"created_at,omitzero"`
	ModifiedAt time.Time         `json:"modified_at,omitzero"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Chunk is a unit of retrievable text. Chunks are produced upstream and
// owned by the vector store; the pipeline only copies them to attach scores.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	Embedding  []float32     `json:"-"`
}

// Key identifies a chunk for deduplication across ranked lists.
func (c Chunk) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("%s|%s|%s", c.DocumentID, c.Metadata.Source, c.Text)
}

// ScoredChunk is a chunk plus the score assigned by a pipeline stage.
// Signals holds per-stage diagnostic sub-scores (semantic, keyword, boosts).
type ScoredChunk struct {
	Chunk
	Score   float64            `json:"score"`
	Signals map[string]float64 `json:"signals,omitempty"`
}

// WithSignal returns a copy with the named diagnostic sub-score recorded.
func (s ScoredChunk) WithSignal(name string, value float64) ScoredChunk {
	signals := make(map[string]float64, len(s.Signals)+1)
	for k, v := range s.Signals {
		signals[k] = v
	}
	signals[name] = value
	s.Signals = signals
	return s
}

// SortRanked orders chunks descending by score. Ties keep input order.
func SortRanked(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

// TruncateRanked returns at most limit chunks; limit <= 0 means no cap.
func TruncateRanked(chunks []ScoredChunk, limit int) []ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}
