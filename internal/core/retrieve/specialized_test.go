package retrieve

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

func TestSpecializedRewritesAbbreviations(t *testing.T) {
	base := &retrieverFake{chunks: chunkList("a")}
	specialized := NewSpecialized(base, nil, 1.2)

	if _, err := specialized.Retrieve(context.Background(), "vm pricing in k8s", 10); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !strings.Contains(base.query, "vm (virtual machine)") {
		t.Fatalf("expected vm expansion, got %q", base.query)
	}
	if !strings.Contains(base.query, "k8s (kubernetes)") {
		t.Fatalf("expected k8s expansion, got %q", base.query)
	}
}

func TestSpecializedBoostsPricingIntent(t *testing.T) {
	base := &retrieverFake{chunks: []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "priced", Text: "Standard tier pricing starts at 10 euro"}, Score: 0.5},
		{Chunk: domain.Chunk{ID: "plain", Text: "The service runs in three regions"}, Score: 0.5},
	}}
	specialized := NewSpecialized(base, nil, 1.2)

	out, err := specialized.Retrieve(context.Background(), "what is the vm cost today", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	var boosted, plain float64
	for _, c := range out {
		switch c.ID {
		case "priced":
			boosted = c.Score
		case "plain":
			plain = c.Score
		}
	}
	ratio := boosted / plain
	if ratio < 1.19 || ratio > 1.21 {
		t.Fatalf("expected pricing boost ratio ~1.2, got %v", ratio)
	}
	if out[0].ID != "priced" {
		t.Fatalf("expected boosted chunk first, got %s", out[0].ID)
	}
}

func TestSpecializedNoIntentLeavesScoresAlone(t *testing.T) {
	base := &retrieverFake{chunks: []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "a", Text: "pricing table"}, Score: 0.4},
	}}
	specialized := NewSpecialized(base, nil, 1.2)

	out, err := specialized.Retrieve(context.Background(), "network throughput limits", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out[0].Score != 0.4 {
		t.Fatalf("expected untouched score, got %v", out[0].Score)
	}
}
