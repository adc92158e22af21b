package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestListChunksAppliesCategoryFilter(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	modified := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "document_id", "text", "source", "title", "author", "category", "extra", "created_at", "modified_at",
	}).AddRow("c1", "d1", "managed postgres pricing", "docs", "Pricing", nil, "databases", []byte(`{"region":"eu"}`), nil, modified)

	mock.ExpectQuery("SELECT id, document_id, text").
		WithArgs("databases", 50).
		WillReturnRows(rows)

	chunks, err := repo.ListChunks(context.Background(), domain.SearchFilter{Category: "databases"}, 50)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	chunk := chunks[0]
	if chunk.ID != "c1" || chunk.Metadata.Category != "databases" {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
	if chunk.Metadata.ModifiedAt != modified {
		t.Fatalf("expected modified_at scanned, got %v", chunk.Metadata.ModifiedAt)
	}
	if chunk.Metadata.Extra["region"] != "eu" {
		t.Fatalf("expected extra decoded, got %+v", chunk.Metadata.Extra)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListChunksPropagatesQueryError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, document_id, text").
		WithArgs(50).
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.ListChunks(context.Background(), domain.SearchFilter{}, 50); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveChunksUpsertsInsideTransaction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c1", "d1", "text one", "docs", "", "", "general", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c2", "d1", "text two", "", "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveChunks(context.Background(), []domain.Chunk{
		{ID: "c1", DocumentID: "d1", Text: "text one", Metadata: domain.ChunkMetadata{Source: "docs", Category: "general"}},
		{ID: "c2", DocumentID: "d1", Text: "text two"},
	})
	if err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveChunksRejectsMissingID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.SaveChunks(context.Background(), []domain.Chunk{{Text: "no id"}})
	if err == nil {
		t.Fatal("expected error for chunk without ID")
	}
}

func TestDeleteChunksReportsAffectedRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM chunks").
		WithArgs("c1", "c2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.DeleteChunks(context.Background(), []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("DeleteChunks() error = %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 rows affected, got %d", affected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
