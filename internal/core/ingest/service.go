package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// ChunkWriter is the relational side of ingestion. Optional; without it the
// corpus lives in the vector store only and keyword retrieval has no source.
type ChunkWriter interface {
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error
	DeleteChunks(ctx context.Context, ids []string) (int64, error)
}

// Service admits chunks into the corpus: embeds them, upserts them into the
// vector store, and mirrors them into the relational store.
type Service struct {
	embedder ports.Embedder
	store    ports.VectorStore
	writer   ChunkWriter
	splitter *Splitter
}

func NewService(embedder ports.Embedder, store ports.VectorStore, writer ChunkWriter) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		writer:   writer,
		splitter: NewSplitter(0, 0),
	}
}

// Document is a full text admitted in one call and split into chunks.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Source   string `json:"source"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

// AddDocument splits the document into overlapping chunks and admits them.
// Chunks share the document ID and carry their position in Extra. Returns the
// document ID (generated when absent) and the stored chunk IDs.
func (s *Service) AddDocument(ctx context.Context, doc Document) (string, []string, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return "", nil, domain.WrapError(domain.ErrInvalidInput, "add document", fmt.Errorf("document text is empty"))
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	pieces := s.splitter.Split(doc.Text)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			DocumentID: doc.ID,
			Text:       piece,
			Metadata: domain.ChunkMetadata{
				Source:   doc.Source,
				Title:    doc.Title,
				Author:   doc.Author,
				Category: doc.Category,
				Extra:    map[string]string{"position": strconv.Itoa(i)},
			},
		})
	}
	ids, err := s.AddChunks(ctx, chunks)
	if err != nil {
		return "", nil, err
	}
	return doc.ID, ids, nil
}

func (s *Service) AddChunks(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add chunks", fmt.Errorf("no chunks supplied"))
	}

	now := time.Now().UTC()
	texts := make([]string, 0, len(chunks))
	for i := range chunks {
		if strings.TrimSpace(chunks[i].Text) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "add chunks", fmt.Errorf("chunk %d has empty text", i))
		}
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		if chunks[i].Metadata.ModifiedAt.IsZero() {
			chunks[i].Metadata.ModifiedAt = now
		}
		texts = append(texts, chunks[i].Text)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(chunks), len(vectors))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	ids, err := s.store.Add(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}

	if s.writer != nil {
		if err := s.writer.SaveChunks(ctx, chunks); err != nil {
			// The vector store already holds the chunks; keyword retrieval
			// lags until the next successful save.
			slog.Warn("chunk_store_mirror_failed", "error", err, "chunks", len(chunks))
		}
	}
	return ids, nil
}

func (s *Service) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "delete chunks", fmt.Errorf("no chunk ids supplied"))
	}

	if err := s.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from vector store: %w", err)
	}
	if s.writer != nil {
		if _, err := s.writer.DeleteChunks(ctx, ids); err != nil {
			slog.Warn("chunk_store_delete_failed", "error", err, "ids", len(ids))
		}
	}
	return nil
}
