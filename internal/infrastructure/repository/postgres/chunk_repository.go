package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// ChunkRepository is the relational side of the corpus. The keyword
// retriever scores candidates listed from here; the vector store holds the
// same chunks with embeddings.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text TEXT NOT NULL,
	source TEXT,
	title TEXT,
	author TEXT,
	category TEXT,
	extra JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ,
	modified_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_category ON chunks(category);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveChunks upserts chunks by ID. Embeddings are not stored here.
func (r *ChunkRepository) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
INSERT INTO chunks (id, document_id, text, source, title, author, category, extra, created_at, modified_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	text = EXCLUDED.text,
	source = EXCLUDED.source,
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	category = EXCLUDED.category,
	extra = EXCLUDED.extra,
	created_at = EXCLUDED.created_at,
	modified_at = EXCLUDED.modified_at
`
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk without ID cannot be saved")
		}
		extraJSON, err := json.Marshal(chunk.Metadata.Extra)
		if err != nil {
			return fmt.Errorf("marshal chunk extra: %w", err)
		}
		meta := chunk.Metadata
		_, err = tx.ExecContext(ctx, query,
			chunk.ID, chunk.DocumentID, chunk.Text,
			meta.Source, meta.Title, meta.Author, meta.Category, extraJSON,
			nullableTime(meta.CreatedAt), nullableTime(meta.ModifiedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

// ListChunks returns candidates for lexical scoring, newest first.
func (r *ChunkRepository) ListChunks(ctx context.Context, filter domain.SearchFilter, limit int) ([]domain.Chunk, error) {
	query := `
SELECT id, document_id, text, source, title, author, category, extra, created_at, modified_at
FROM chunks
`
	args := make([]any, 0, 3)
	where := ""
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = fmt.Sprintf("WHERE category = $%d\n", len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		clause := fmt.Sprintf("source = $%d\n", len(args))
		if where == "" {
			where = "WHERE " + clause
		} else {
			where += "AND " + clause
		}
	}
	args = append(args, limit)
	query += where + fmt.Sprintf("ORDER BY modified_at DESC NULLS LAST\nLIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var source, title, author, category sql.NullString
		var extraRaw []byte
		var createdAt, modifiedAt sql.NullTime

		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Text,
			&source, &title, &author, &category, &extraRaw,
			&createdAt, &modifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		chunk.Metadata = domain.ChunkMetadata{
			Source:   source.String,
			Title:    title.String,
			Author:   author.String,
			Category: category.String,
		}
		if createdAt.Valid {
			chunk.Metadata.CreatedAt = createdAt.Time
		}
		if modifiedAt.Valid {
			chunk.Metadata.ModifiedAt = modifiedAt.Time
		}
		if len(extraRaw) > 0 {
			if err := json.Unmarshal(extraRaw, &chunk.Metadata.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal chunk extra: %w", err)
			}
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// DeleteChunks removes chunks by ID and returns how many rows went away.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `DELETE FROM chunks WHERE id IN (` + strings.Join(placeholders, ",") + `)`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks rows affected: %w", err)
	}
	return affected, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
