package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

type queryEmbedderFake struct {
	vector []float32
	err    error
}

func (f *queryEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *queryEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type searchStoreFake struct {
	chunks []domain.ScoredChunk
	err    error

	gotVector []float32
	gotLimit  int
	gotFilter domain.SearchFilter
}

func (f *searchStoreFake) Search(_ context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	f.gotVector = vector
	f.gotLimit = limit
	f.gotFilter = filter
	return f.chunks, f.err
}

func (f *searchStoreFake) Add(context.Context, []domain.Chunk) ([]string, error) { return nil, nil }
func (f *searchStoreFake) Delete(context.Context, []string) error                { return nil }

func TestVectorRetrievePassesFilterAndLimit(t *testing.T) {
	store := &searchStoreFake{chunks: []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "c1"}, Score: 0.9},
	}}
	r := NewVector(&queryEmbedderFake{vector: []float32{1, 0}}, store, domain.SearchFilter{Category: "databases"}, 0)

	chunks, err := r.Retrieve(context.Background(), "postgres failover", 7)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if store.gotLimit != 7 || store.gotFilter.Category != "databases" {
		t.Fatalf("search got limit=%d filter=%+v", store.gotLimit, store.gotFilter)
	}
	if len(store.gotVector) != 2 {
		t.Fatalf("expected query vector forwarded, got %v", store.gotVector)
	}
}

func TestVectorRetrieveAppliesMinScore(t *testing.T) {
	store := &searchStoreFake{chunks: []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "keep"}, Score: 0.8},
		{Chunk: domain.Chunk{ID: "drop"}, Score: 0.2},
	}}
	r := NewVector(&queryEmbedderFake{vector: []float32{1}}, store, domain.SearchFilter{}, 0.5)

	chunks, err := r.Retrieve(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "keep" {
		t.Fatalf("expected low scores filtered, got %+v", chunks)
	}
}

func TestVectorRetrieveWrapsFailures(t *testing.T) {
	r := NewVector(&queryEmbedderFake{err: errors.New("model down")}, &searchStoreFake{}, domain.SearchFilter{}, 0)
	if _, err := r.Retrieve(context.Background(), "query", 5); !domain.IsKind(err, domain.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}

	r = NewVector(&queryEmbedderFake{vector: []float32{1}}, &searchStoreFake{err: errors.New("qdrant down")}, domain.SearchFilter{}, 0)
	if _, err := r.Retrieve(context.Background(), "query", 5); !domain.IsKind(err, domain.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}
}
