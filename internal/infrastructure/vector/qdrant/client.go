package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Client stores and searches chunk vectors in one Qdrant collection over
// the REST API.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Add upserts chunks and returns the assigned point IDs. Chunks without an
// ID get a generated one so later Delete calls can address them.
func (c *Client) Add(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %q has no embedding", chunk.Key())
		}
	}

	if err := c.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return nil, err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	ids := make([]string, 0, len(chunks))
	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids = append(ids, id)
		payload := chunkPayload(chunk)
		payload["chunk_id"] = id
		points = append(points, point{
			ID:      id,
			Vector:  chunk.Embedding,
			Payload: payload,
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.send(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert"); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if conditions := filterConditions(filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.send(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := chunkFromPayload(r.Payload)
		if chunk.ID == "" {
			chunk.ID = fmt.Sprintf("%v", r.ID)
		}
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: r.Score})
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	return c.send(ctx, http.MethodPost, url, map[string]any{"points": ids}, nil, "delete")
}

func chunkPayload(chunk domain.Chunk) map[string]any {
	payload := map[string]any{
		"doc_id": chunk.DocumentID,
		"text":   chunk.Text,
	}
	meta := chunk.Metadata
	if meta.Source != "" {
		payload["source"] = meta.Source
	}
	if meta.Title != "" {
		payload["title"] = meta.Title
	}
	if meta.Author != "" {
		payload["author"] = meta.Author
	}
	if meta.Category != "" {
		payload["category"] = meta.Category
	}
	if !meta.CreatedAt.IsZero() {
		payload["created_at"] = meta.CreatedAt.Format(time.RFC3339)
	}
	if !meta.ModifiedAt.IsZero() {
		payload["modified_at"] = meta.ModifiedAt.Format(time.RFC3339)
	}
	return payload
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:         stringPayload(payload, "chunk_id"),
		DocumentID: stringPayload(payload, "doc_id"),
		Text:       stringPayload(payload, "text"),
		Metadata: domain.ChunkMetadata{
			Source:     stringPayload(payload, "source"),
			Title:      stringPayload(payload, "title"),
			Author:     stringPayload(payload, "author"),
			Category:   stringPayload(payload, "category"),
			CreatedAt:  timePayload(payload, "created_at"),
			ModifiedAt: timePayload(payload, "modified_at"),
		},
	}
}

func filterConditions(filter domain.SearchFilter) []map[string]any {
	var conditions []map[string]any
	if filter.Category != "" {
		conditions = append(conditions, map[string]any{
			"key":   "category",
			"match": map[string]any{"value": filter.Category},
		})
	}
	if filter.Source != "" {
		conditions = append(conditions, map[string]any{
			"key":   "source",
			"match": map[string]any{"value": filter.Source},
		})
	}
	return conditions
}

func (c *Client) send(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.send(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")
	// 409 means the collection already exists, which is fine.
	if err != nil && strings.Contains(err.Error(), "409") {
		err = nil
	}
	if err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func timePayload(payload map[string]any, key string) time.Time {
	s, ok := payload[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
