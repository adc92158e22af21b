package composition

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ComponentSpec names one registered implementation and its parameters.
type ComponentSpec struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// RetrieverSpec is a component plus the strategy label used to route
// decomposed sub-queries.
type RetrieverSpec struct {
	Name     string         `yaml:"name"`
	Strategy string         `yaml:"strategy"`
	Params   map[string]any `yaml:"params"`
}

type FusionSpec struct {
	Method  string    `yaml:"method"`
	RRFK    int       `yaml:"rrf_k"`
	Weights []float64 `yaml:"weights"`
}

type LimitsSpec struct {
	CandidateLimit int      `yaml:"candidate_limit"`
	DefaultLimit   int      `yaml:"default_limit"`
	BranchTimeout  Duration `yaml:"branch_timeout"`
}

// Duration accepts Go duration strings ("5s", "250ms") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Spec is the declarative pipeline layout loaded from YAML.
type Spec struct {
	Transformer *ComponentSpec  `yaml:"transformer"`
	Retrievers  []RetrieverSpec `yaml:"retrievers"`
	Fusion      FusionSpec      `yaml:"fusion"`
	Reranker    *ComponentSpec  `yaml:"reranker"`
	Limits      LimitsSpec      `yaml:"limits"`
}

// Default is the layout used when no composition file is configured:
// hybrid-style vector plus keyword retrieval fused with RRF, reranked by
// embedding similarity.
func Default() Spec {
	return Spec{
		Retrievers: []RetrieverSpec{
			{Name: "vector", Strategy: "vector"},
			{Name: "keyword", Strategy: "keyword"},
		},
		Fusion:   FusionSpec{Method: "rrf"},
		Reranker: &ComponentSpec{Name: "similarity"},
	}
}

func Load(path string) (Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read composition file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse composition: %w", err)
	}
	if err := spec.validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) validate() error {
	if len(s.Retrievers) == 0 {
		return fmt.Errorf("composition: at least one retriever is required")
	}
	seen := make(map[string]bool, len(s.Retrievers))
	for i, r := range s.Retrievers {
		if r.Name == "" {
			return fmt.Errorf("composition: retriever %d has no name", i)
		}
		strategy := r.Strategy
		if strategy == "" {
			strategy = r.Name
		}
		if seen[strategy] {
			return fmt.Errorf("composition: duplicate retriever strategy %q", strategy)
		}
		seen[strategy] = true
	}
	if s.Transformer != nil && s.Transformer.Name == "" {
		return fmt.Errorf("composition: transformer has no name")
	}
	if s.Reranker != nil && s.Reranker.Name == "" {
		return fmt.Errorf("composition: reranker has no name")
	}
	return nil
}
