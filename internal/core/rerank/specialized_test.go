package rerank

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

func TestSpecializedBoostsPricingIntentByConfiguredFactor(t *testing.T) {
	reranker := NewSpecialized(nil, Boosts{}, nil)
	chunks := []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "priced", Text: "the pricing table lists all tiers"}, Score: 0.5},
		{Chunk: domain.Chunk{ID: "plain", Text: "regional availability overview"}, Score: 0.5},
	}

	out, err := reranker.Rerank(context.Background(), "what does the standard tier cost", chunks, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}

	var boosted, original float64
	for _, c := range out {
		switch c.ID {
		case "priced":
			boosted = c.Score
		case "plain":
			original = c.Score
		}
	}
	ratio := boosted / original
	if ratio < 1.19 || ratio > 1.21 {
		t.Fatalf("expected boost ratio ~1.2, got %v", ratio)
	}
}

func TestSpecializedEntityMentionBoost(t *testing.T) {
	reranker := NewSpecialized(nil, Boosts{}, []string{"postgres"})
	chunks := []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "entity", Text: "Managed Postgres supports replicas"}, Score: 0.5},
		{Chunk: domain.Chunk{ID: "other", Text: "Managed Redis supports clustering"}, Score: 0.5},
	}

	out, err := reranker.Rerank(context.Background(), "postgres replica setup", chunks, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].ID != "entity" {
		t.Fatalf("expected entity-matching chunk first, got %s", out[0].ID)
	}
}

func TestSpecializedRecencyTiers(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	reranker := NewSpecialized(nil, Boosts{}, nil)
	reranker.now = func() time.Time { return now }

	cases := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"fresh", 10 * 24 * time.Hour, 1.15},
		{"recent", 60 * 24 * time.Hour, 1.08},
		{"aging", 150 * 24 * time.Hour, 1.04},
		{"old", 400 * 24 * time.Hour, 1.0},
	}

	for _, tc := range cases {
		chunks := []domain.ScoredChunk{{
			Chunk: domain.Chunk{
				ID:       tc.name,
				Text:     "neutral text",
				Metadata: domain.ChunkMetadata{ModifiedAt: now.Add(-tc.age)},
			},
			Score: 0.5,
		}}

		out, err := reranker.Rerank(context.Background(), "neutral query", chunks, 0)
		if err != nil {
			t.Fatalf("%s: Rerank() error = %v", tc.name, err)
		}
		want := 0.5 * tc.want
		if diff := out[0].Score - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s: expected score %v, got %v", tc.name, want, out[0].Score)
		}
	}
}

func TestSpecializedZeroModifiedAtNoRecencyBoost(t *testing.T) {
	reranker := NewSpecialized(nil, Boosts{}, nil)
	chunks := []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "a", Text: "neutral"}, Score: 0.5}}

	out, err := reranker.Rerank(context.Background(), "neutral query", chunks, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].Score != 0.5 {
		t.Fatalf("expected untouched score, got %v", out[0].Score)
	}
}
