package composition

import (
	"fmt"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/fusion"
	"github.com/kirillkom/retrieval-engine/internal/core/pipeline"
	"github.com/kirillkom/retrieval-engine/internal/core/registry"
	"github.com/kirillkom/retrieval-engine/internal/core/rerank"
	"github.com/kirillkom/retrieval-engine/internal/core/retrieve"
	"github.com/kirillkom/retrieval-engine/internal/core/transform"
)

// Build instantiates the pipeline the spec describes from registered
// component factories.
func Build(reg *registry.Registry, spec Spec, observer pipeline.Observer) (*pipeline.Orchestrator, error) {
	cfg := pipeline.Config{
		Method:         fusion.Method(spec.Fusion.Method),
		FusionOpts:     fusion.Options{RRFK: spec.Fusion.RRFK, Weights: spec.Fusion.Weights},
		BranchTimeout:  time.Duration(spec.Limits.BranchTimeout),
		CandidateLimit: spec.Limits.CandidateLimit,
		DefaultLimit:   spec.Limits.DefaultLimit,
		Observer:       observer,
	}
	if cfg.Method == "" {
		cfg.Method = fusion.MethodRRF
	}

	if spec.Transformer != nil {
		instance, err := reg.Create(registry.KindTransformer, spec.Transformer.Name, registry.Config(spec.Transformer.Params))
		if err != nil {
			return nil, err
		}
		transformer, ok := instance.(transform.Transformer)
		if !ok {
			return nil, fmt.Errorf("composition: transformer %q has wrong type %T", spec.Transformer.Name, instance)
		}
		cfg.Transformer = transformer
	}

	for _, retrieverSpec := range spec.Retrievers {
		instance, err := reg.Create(registry.KindRetriever, retrieverSpec.Name, registry.Config(retrieverSpec.Params))
		if err != nil {
			return nil, err
		}
		retriever, ok := instance.(retrieve.Retriever)
		if !ok {
			return nil, fmt.Errorf("composition: retriever %q has wrong type %T", retrieverSpec.Name, instance)
		}
		strategy := retrieverSpec.Strategy
		if strategy == "" {
			strategy = retrieverSpec.Name
		}
		cfg.Branches = append(cfg.Branches, pipeline.Branch{Name: strategy, Retriever: retriever})
	}

	if spec.Reranker != nil {
		instance, err := reg.Create(registry.KindReranker, spec.Reranker.Name, registry.Config(spec.Reranker.Params))
		if err != nil {
			return nil, err
		}
		reranker, ok := instance.(rerank.Reranker)
		if !ok {
			return nil, fmt.Errorf("composition: reranker %q has wrong type %T", spec.Reranker.Name, instance)
		}
		cfg.Reranker = reranker
	}

	return pipeline.New(cfg)
}
