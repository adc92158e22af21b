package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/fusion"
	"github.com/kirillkom/retrieval-engine/internal/core/transform"
)

type retrieverFake struct {
	mu      sync.Mutex
	chunks  []domain.ScoredChunk
	err     error
	delay   time.Duration
	queries []string
}

func (f *retrieverFake) Retrieve(ctx context.Context, query string, _ int) ([]domain.ScoredChunk, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func (f *retrieverFake) seenQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

type staticTransform struct {
	query string
	subs  []domain.QueryVariant
	err   error
}

func (f staticTransform) Transform(_ context.Context, query string) (transform.Result, error) {
	if f.err != nil {
		return transform.Result{}, f.err
	}
	out := transform.Result{Query: f.query, SubQueries: f.subs}
	if out.Query == "" {
		out.Query = query
	}
	return out, nil
}

type rerankerFake struct {
	output []domain.ScoredChunk
	err    error
	calls  int
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, chunks []domain.ScoredChunk, _ int) ([]domain.ScoredChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.output != nil {
		return f.output, nil
	}
	return chunks, nil
}

func scored(id string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{ID: id, Text: "text " + id}, Score: score}
}

func chunkIDs(chunks []domain.ScoredChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ID)
	}
	return out
}

func TestOrchestratorWeightedFusionStableUnderBranchLatency(t *testing.T) {
	run := func(vectorDelay, keywordDelay time.Duration) *domain.PipelineResult {
		orch, err := New(Config{
			Branches: []Branch{
				{Name: domain.StrategyVector, Retriever: &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 1.0)}, delay: vectorDelay}},
				{Name: domain.StrategyKeyword, Retriever: &retrieverFake{chunks: []domain.ScoredChunk{scored("b", 1.0)}, delay: keywordDelay}},
			},
			Method:     fusion.MethodWeighted,
			FusionOpts: fusion.Options{Weights: []float64{0.9, 0.1}},
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		result, err := orch.Retrieve(context.Background(), "managed databases", Options{Limit: 2})
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		return result
	}

	// Weights follow branch position, not completion order: a always gets
	// 0.9*1.0 + 0.1*0.5 and b always 0.9*0.5 + 0.1*1.0.
	for _, result := range []*domain.PipelineResult{
		run(0, 30*time.Millisecond),
		run(30*time.Millisecond, 0),
	} {
		if got := chunkIDs(result.Chunks); !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Fatalf("expected order [a b] regardless of branch latency, got %v", got)
		}
		if diff := result.Chunks[0].Score - 0.95; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("expected a fused to 0.95, got %v", result.Chunks[0].Score)
		}
		if diff := result.Chunks[1].Score - 0.55; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("expected b fused to 0.55, got %v", result.Chunks[1].Score)
		}
	}
}

func TestOrchestratorFusesBranchesAndReranks(t *testing.T) {
	vector := &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 0.9), scored("b", 0.8)}}
	keyword := &retrieverFake{chunks: []domain.ScoredChunk{scored("b", 0.7), scored("c", 0.6)}}
	reranker := &rerankerFake{}

	orch, err := New(Config{
		Branches: []Branch{
			{Name: domain.StrategyVector, Retriever: vector},
			{Name: domain.StrategyKeyword, Retriever: keyword},
		},
		Method:   fusion.MethodRRF,
		Reranker: reranker,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := orch.Retrieve(context.Background(), "managed databases", Options{Limit: 3})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := chunkIDs(result.Chunks); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Fatalf("expected fused order [b a c], got %v", got)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected one rerank call, got %d", reranker.calls)
	}
	if len(result.Degraded) != 0 {
		t.Fatalf("expected no degraded stages, got %v", result.Degraded)
	}
	if len(result.Timings) != 4 {
		t.Fatalf("expected 4 stage timings, got %v", result.Timings)
	}
}

func TestOrchestratorRejectsEmptyQuery(t *testing.T) {
	orch, err := New(Config{Branches: []Branch{{Name: domain.StrategyVector, Retriever: &retrieverFake{}}}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := orch.Retrieve(context.Background(), "   ", Options{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOrchestratorDegradesWhenOneBranchFails(t *testing.T) {
	healthy := &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 0.9)}}
	broken := &retrieverFake{err: errors.New("store down")}

	orch, err := New(Config{
		Branches: []Branch{
			{Name: domain.StrategyVector, Retriever: healthy},
			{Name: domain.StrategyKeyword, Retriever: broken},
		},
		Method: fusion.MethodRRF,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := orch.Retrieve(context.Background(), "query", Options{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := chunkIDs(result.Chunks); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected surviving branch result, got %v", got)
	}
	if !reflect.DeepEqual(result.Degraded, []string{"retrieve"}) {
		t.Fatalf("expected retrieve marked degraded, got %v", result.Degraded)
	}
}

func TestOrchestratorFailsWhenAllBranchesFail(t *testing.T) {
	orch, err := New(Config{
		Branches: []Branch{
			{Name: domain.StrategyVector, Retriever: &retrieverFake{err: errors.New("one")}},
			{Name: domain.StrategyKeyword, Retriever: &retrieverFake{err: errors.New("two")}},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := orch.Retrieve(context.Background(), "query", Options{}); !domain.IsKind(err, domain.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}
}

func TestOrchestratorReturnsPartialResultOnCancellation(t *testing.T) {
	fast := &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 0.9)}}
	slow := &retrieverFake{chunks: []domain.ScoredChunk{scored("b", 0.8)}, delay: 500 * time.Millisecond}

	orch, err := New(Config{
		Branches: []Branch{
			{Name: domain.StrategyVector, Retriever: fast},
			{Name: domain.StrategyKeyword, Retriever: slow},
		},
		Method: fusion.MethodRRF,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := orch.Retrieve(ctx, "query", Options{})
	if err != nil {
		t.Fatalf("expected partial result, got error %v", err)
	}
	if got := chunkIDs(result.Chunks); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected fast branch only, got %v", got)
	}
	if !reflect.DeepEqual(result.Degraded, []string{"retrieve"}) {
		t.Fatalf("expected retrieve marked degraded, got %v", result.Degraded)
	}
}

func TestOrchestratorCancellationWithNoFinishedBranchFails(t *testing.T) {
	slow := &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 0.9)}, delay: 500 * time.Millisecond}

	orch, err := New(Config{Branches: []Branch{{Name: domain.StrategyVector, Retriever: slow}}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := orch.Retrieve(ctx, "query", Options{}); !domain.IsKind(err, domain.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed on empty cancellation, got %v", err)
	}
}

func TestOrchestratorRoutesSubQueriesByStrategy(t *testing.T) {
	vector := &retrieverFake{chunks: []domain.ScoredChunk{scored("v", 0.9)}}
	keyword := &retrieverFake{chunks: []domain.ScoredChunk{scored("k", 0.8)}}

	orch, err := New(Config{
		Transformer: staticTransform{
			query: "main",
			subs: []domain.QueryVariant{
				{Text: "keyword sub", Strategy: domain.StrategyKeyword},
				{Text: "unknown sub", Strategy: "graph"},
			},
		},
		Branches: []Branch{
			{Name: domain.StrategyVector, Retriever: vector},
			{Name: domain.StrategyKeyword, Retriever: keyword},
		},
		Method: fusion.MethodRRF,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := orch.Retrieve(context.Background(), "original", Options{}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	vectorQueries := vector.seenQueries()
	keywordQueries := keyword.seenQueries()
	if len(vectorQueries) != 2 {
		t.Fatalf("expected vector branch to also absorb unknown strategy, got %v", vectorQueries)
	}
	if len(keywordQueries) != 2 {
		t.Fatalf("expected keyword branch to serve main query and its sub-query, got %v", keywordQueries)
	}
}

func TestOrchestratorTransformFailureFallsBackToOriginal(t *testing.T) {
	retriever := &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 0.9)}}
	orch, err := New(Config{
		Transformer: staticTransform{err: errors.New("model down")},
		Branches:    []Branch{{Name: domain.StrategyVector, Retriever: retriever}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := orch.Retrieve(context.Background(), "original question", Options{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := retriever.seenQueries(); !reflect.DeepEqual(got, []string{"original question"}) {
		t.Fatalf("expected original query forwarded, got %v", got)
	}
	if !reflect.DeepEqual(result.Degraded, []string{"transform"}) {
		t.Fatalf("expected transform marked degraded, got %v", result.Degraded)
	}
}

func TestOrchestratorRerankFailureKeepsFusedOrder(t *testing.T) {
	retriever := &retrieverFake{chunks: []domain.ScoredChunk{scored("a", 0.9), scored("b", 0.8)}}
	orch, err := New(Config{
		Branches: []Branch{{Name: domain.StrategyVector, Retriever: retriever}},
		Method:   fusion.MethodRRF,
		Reranker: &rerankerFake{err: errors.New("reranker down")},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := orch.Retrieve(context.Background(), "query", Options{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := chunkIDs(result.Chunks); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected fused order preserved, got %v", got)
	}
	if !reflect.DeepEqual(result.Degraded, []string{"rerank"}) {
		t.Fatalf("expected rerank marked degraded, got %v", result.Degraded)
	}
}

func TestOrchestratorRequiresAtLeastOneBranch(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected configuration error for empty branch set")
	}
}
