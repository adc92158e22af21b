package domain

import "time"

// Retrieval strategy hints attached to query variants.
const (
	StrategyVector  = "vector"
	StrategyKeyword = "keyword"
	StrategyHybrid  = "hybrid"
)

// QueryVariant is one rewritten form of the user query, optionally tagged
// with the retrieval strategy that should serve it.
type QueryVariant struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy,omitempty"`
}

// Query is the raw request text plus transformer-produced variants.
type Query struct {
	Text     string         `json:"text"`
	Variants []QueryVariant `json:"variants,omitempty"`
}

// SearchFilter restricts retrieval to matching chunk metadata.
type SearchFilter struct {
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// PipelineResult is the ranked output of one orchestrated retrieval request
// plus per-stage observability metadata. Degraded lists the stages that fell
// back to pass-through instead of failing the request.
type PipelineResult struct {
	Chunks   []ScoredChunk `json:"chunks"`
	Timings  []StageTiming `json:"timings"`
	Degraded []string      `json:"degraded,omitempty"`
}
