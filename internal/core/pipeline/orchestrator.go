package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/fusion"
	"github.com/kirillkom/retrieval-engine/internal/core/rerank"
	"github.com/kirillkom/retrieval-engine/internal/core/retrieve"
	"github.com/kirillkom/retrieval-engine/internal/core/transform"
)

// Options scope one retrieval request. Search filters are bound to
// retrievers at construction time, not per request.
type Options struct {
	Limit int
}

// Observer receives pipeline observations. Implemented by the prometheus
// metrics package; nil-safe throughout.
type Observer interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveDegraded(stage string)
	ObserveBranch(branch string, outcome string)
	ObserveResult(chunkCount int, duration time.Duration)
}

// Branch pairs a named retriever with the strategy hints it serves.
type Branch struct {
	Name      string
	Retriever retrieve.Retriever
}

// Orchestrator wires transformer, retriever branches, fusion and reranker
// into one Retrieve call. Transform and rerank are best-effort; retrieval is
// the only fatal stage.
type Orchestrator struct {
	transformer    transform.Transformer
	branches       []Branch
	byStrategy     map[string]retrieve.Retriever
	method         fusion.Method
	fusionOpts     fusion.Options
	reranker       rerank.Reranker
	branchTimeout  time.Duration
	candidateLimit int
	defaultLimit   int
	observer       Observer
}

type Config struct {
	Transformer    transform.Transformer
	Branches       []Branch
	Method         fusion.Method
	FusionOpts     fusion.Options
	Reranker       rerank.Reranker
	BranchTimeout  time.Duration
	CandidateLimit int
	DefaultLimit   int
	Observer       Observer
}

func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Branches) == 0 {
		return nil, fmt.Errorf("pipeline: at least one retriever branch is required")
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = 5 * time.Second
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 30
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}

	byStrategy := make(map[string]retrieve.Retriever, len(cfg.Branches))
	for _, branch := range cfg.Branches {
		byStrategy[branch.Name] = branch.Retriever
	}

	return &Orchestrator{
		transformer:    cfg.Transformer,
		branches:       cfg.Branches,
		byStrategy:     byStrategy,
		method:         cfg.Method,
		fusionOpts:     cfg.FusionOpts,
		reranker:       cfg.Reranker,
		branchTimeout:  cfg.BranchTimeout,
		candidateLimit: cfg.CandidateLimit,
		defaultLimit:   cfg.DefaultLimit,
		observer:       cfg.Observer,
	}, nil
}

// Retrieve runs the full pipeline for one query.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, opts Options) (*domain.PipelineResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is empty"))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = o.defaultLimit
	}

	run := newRun(o.observer)

	// Transforming: best-effort rewrite plus optional decomposition.
	run.advance(stateTransforming)
	var transformed transform.Result
	run.timed("transform", func() {
		transformed = o.transformQuery(ctx, query, run)
	})

	// Retrieving: the only fatal stage.
	run.advance(stateRetrieving)
	var lists [][]domain.ScoredChunk
	var retrieveErr error
	run.timed("retrieve", func() {
		lists, retrieveErr = o.retrieveBranches(ctx, transformed, run)
	})
	if retrieveErr != nil {
		run.fail()
		return nil, retrieveErr
	}

	// Fusing: pure computation over materialized lists.
	run.advance(stateFusing)
	var fused []domain.ScoredChunk
	run.timed("fuse", func() {
		fused = fusion.FuseWith(lists, o.method, o.fusionOpts)
		fused = domain.TruncateRanked(fused, o.candidateLimit)
	})

	// Reranking: best-effort precision pass.
	run.advance(stateReranking)
	run.timed("rerank", func() {
		fused = o.rerankCandidates(ctx, query, fused, limit, run)
	})

	run.advance(stateDone)
	result := &domain.PipelineResult{
		Chunks:   domain.TruncateRanked(fused, limit),
		Timings:  run.timings,
		Degraded: run.degraded,
	}
	if o.observer != nil {
		o.observer.ObserveResult(len(result.Chunks), time.Since(start))
	}
	return result, nil
}

func (o *Orchestrator) transformQuery(ctx context.Context, query string, run *run) transform.Result {
	if o.transformer == nil {
		return transform.Result{Query: query}
	}
	result, err := o.transformer.Transform(ctx, query)
	if err != nil {
		slog.Warn("pipeline_transform_degraded", "error", err)
		run.degrade("transform")
		return transform.Result{Query: query}
	}
	if result.Query == "" {
		result.Query = query
	}
	return result
}

// branchTask is one concurrent retrieval unit: a retriever bound to one
// query variant.
type branchTask struct {
	name      string
	query     string
	retriever retrieve.Retriever
}

func (o *Orchestrator) branchTasks(transformed transform.Result) []branchTask {
	tasks := make([]branchTask, 0, len(o.branches)+len(transformed.SubQueries))
	for _, branch := range o.branches {
		tasks = append(tasks, branchTask{name: branch.Name, query: transformed.Query, retriever: branch.Retriever})
	}
	for _, sub := range transformed.SubQueries {
		retriever, ok := o.byStrategy[sub.Strategy]
		if !ok {
			retriever = o.branches[0].Retriever
		}
		tasks = append(tasks, branchTask{name: "sub:" + sub.Strategy, query: sub.Text, retriever: retriever})
	}
	return tasks
}

// retrieveBranches fans out over all branch tasks. Each task writes into its
// own slot so list positions always match task order regardless of which
// branch finished first; fusion weights and tie-breaks stay stable. Failed
// slots stay nil. On cancellation it returns whatever branches completed in
// time; a request with zero surviving lists fails.
func (o *Orchestrator) retrieveBranches(ctx context.Context, transformed transform.Result, run *run) ([][]domain.ScoredChunk, error) {
	tasks := o.branchTasks(transformed)

	var mu sync.Mutex
	lists := make([][]domain.ScoredChunk, len(tasks))
	var firstErr error
	succeeded := 0
	pending := len(tasks)
	done := make(chan struct{})

	for i, task := range tasks {
		go func() {
			branchCtx, cancel := context.WithTimeout(ctx, o.branchTimeout)
			defer cancel()

			chunks, err := task.retriever.Retrieve(branchCtx, task.query, o.candidateLimit)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("pipeline_branch_failed", "branch", task.name, "error", err)
				run.observeBranch(task.name, "error")
				if firstErr == nil {
					firstErr = err
				}
			} else {
				run.observeBranch(task.name, "ok")
				lists[i] = chunks
				succeeded++
			}
			pending--
			if pending == 0 {
				close(done)
			}
		}()
	}

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		partial := make([][]domain.ScoredChunk, len(lists))
		copy(partial, lists)
		completed := succeeded
		mu.Unlock()
		if completed == 0 {
			return nil, domain.WrapError(domain.ErrRetrievalFailed, "retrieve branches", ctx.Err())
		}
		slog.Warn("pipeline_partial_result", "completed_branches", completed, "total_branches", len(tasks))
		run.degrade("retrieve")
		return partial, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if succeeded == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no retriever branches configured")
		}
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "retrieve branches", firstErr)
	}
	if firstErr != nil {
		run.degrade("retrieve")
	}
	return lists, nil
}

func (o *Orchestrator) rerankCandidates(ctx context.Context, query string, fused []domain.ScoredChunk, limit int, run *run) []domain.ScoredChunk {
	if o.reranker == nil || len(fused) == 0 {
		return fused
	}
	reranked, err := o.reranker.Rerank(ctx, query, fused, limit)
	if err != nil {
		slog.Warn("pipeline_rerank_degraded", "error", err)
		run.degrade("rerank")
		return fused
	}
	return reranked
}
