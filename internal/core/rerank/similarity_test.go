package rerank

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

type embedderFake struct {
	queryVector []float32
	byText      map[string][]float32
	queryErr    error
	embedErr    error
	embedCalls  int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, f.byText[text])
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryVector, nil
}

func embeddedChunk(id string, score float64, embedding []float32) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: id, Text: "text " + id, Embedding: embedding},
		Score: score,
	}
}

func ids(chunks []domain.ScoredChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ID)
	}
	return out
}

func TestSimilarityReordersByCosine(t *testing.T) {
	embedder := &embedderFake{queryVector: []float32{1, 0}}
	chunks := []domain.ScoredChunk{
		embeddedChunk("orthogonal", 0.9, []float32{0, 1}),
		embeddedChunk("aligned", 0.1, []float32{2, 0}),
	}

	out, err := NewSimilarity(embedder).Rerank(context.Background(), "q", chunks, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if got := ids(out); !reflect.DeepEqual(got, []string{"aligned", "orthogonal"}) {
		t.Fatalf("expected cosine order, got %v", got)
	}
	if out[0].Score != 1 {
		t.Fatalf("expected cosine 1 for aligned vectors, got %v", out[0].Score)
	}
	if embedder.embedCalls != 0 {
		t.Fatalf("expected no lazy embedding for embedded chunks, got %d calls", embedder.embedCalls)
	}
}

func TestSimilarityEmbedsMissingChunksLazily(t *testing.T) {
	embedder := &embedderFake{
		queryVector: []float32{1, 0},
		byText:      map[string][]float32{"text lazy": {1, 0}},
	}
	chunks := []domain.ScoredChunk{
		embeddedChunk("eager", 0.5, []float32{0, 1}),
		embeddedChunk("lazy", 0.5, nil),
	}

	out, err := NewSimilarity(embedder).Rerank(context.Background(), "q", chunks, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if embedder.embedCalls != 1 {
		t.Fatalf("expected one batched embed call, got %d", embedder.embedCalls)
	}
	if out[0].ID != "lazy" {
		t.Fatalf("expected lazily embedded chunk first, got %s", out[0].ID)
	}
}

func TestSimilarityPassThroughOnQueryEmbedFailure(t *testing.T) {
	embedder := &embedderFake{queryErr: errors.New("embedder down")}
	chunks := []domain.ScoredChunk{
		embeddedChunk("a", 0.9, []float32{1, 0}),
		embeddedChunk("b", 0.5, []float32{0, 1}),
	}

	out, err := NewSimilarity(embedder).Rerank(context.Background(), "q", chunks, 1)
	if err != nil {
		t.Fatalf("expected degradation without error, got %v", err)
	}
	if !reflect.DeepEqual(ids(out), []string{"a", "b"}) {
		t.Fatalf("expected input returned unchanged, got %v", ids(out))
	}
	if out[0].Score != 0.9 || out[1].Score != 0.5 {
		t.Fatalf("expected input scores preserved, got %v/%v", out[0].Score, out[1].Score)
	}
}

func TestSimilarityPassThroughOnChunkEmbedFailure(t *testing.T) {
	embedder := &embedderFake{queryVector: []float32{1, 0}, embedErr: errors.New("embedder down")}
	chunks := []domain.ScoredChunk{embeddedChunk("a", 0.9, nil)}

	out, err := NewSimilarity(embedder).Rerank(context.Background(), "q", chunks, 0)
	if err != nil {
		t.Fatalf("expected degradation without error, got %v", err)
	}
	if out[0].ID != "a" || out[0].Score != 0.9 {
		t.Fatalf("expected input returned unchanged, got %+v", out[0])
	}
}
