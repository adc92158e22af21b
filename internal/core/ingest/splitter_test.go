package ingest

import (
	"strings"
	"testing"
)

func TestSplitShortTextSinglePiece(t *testing.T) {
	s := NewSplitter(100, 20)

	pieces := s.Split("one short paragraph")
	if len(pieces) != 1 || pieces[0] != "one short paragraph" {
		t.Fatalf("expected single piece, got %v", pieces)
	}
}

func TestSplitEmptyTextReturnsNil(t *testing.T) {
	s := NewSplitter(100, 20)

	if pieces := s.Split(""); pieces != nil {
		t.Fatalf("expected nil for empty text, got %v", pieces)
	}
}

func TestSplitOverlapsWindows(t *testing.T) {
	s := NewSplitter(30, 10)

	text := strings.Repeat("word ", 30)
	pieces := s.Split(text)
	if len(pieces) < 3 {
		t.Fatalf("expected several pieces, got %d", len(pieces))
	}
	for i, piece := range pieces {
		if len([]rune(piece)) > 30 {
			t.Fatalf("piece %d exceeds window: %q", i, piece)
		}
	}
}

func TestSplitPrefersWhitespaceBoundaries(t *testing.T) {
	s := NewSplitter(20, 0)

	pieces := s.Split("alpha beta gamma delta epsilon zeta")
	for i, piece := range pieces {
		if strings.HasPrefix(piece, " ") || strings.HasSuffix(piece, " ") {
			t.Fatalf("piece %d not trimmed: %q", i, piece)
		}
	}
}

func TestSplitterNormalizesBadConfig(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.chunkSize != defaultChunkSize || s.overlap != 0 {
		t.Fatalf("unexpected defaults: size=%d overlap=%d", s.chunkSize, s.overlap)
	}

	s = NewSplitter(100, 100)
	if s.overlap != 25 {
		t.Fatalf("expected overlap clamped to quarter window, got %d", s.overlap)
	}
}
