package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// Observer counts cache traffic. Implemented by the metrics package.
type Observer interface {
	ObserveCache(hit bool)
}

// CachedEmbedder fronts an embedder with a vector cache keyed by model and
// text. Cache failures degrade to the wrapped embedder; they never fail the
// request.
type CachedEmbedder struct {
	inner    ports.Embedder
	store    Store
	model    string
	ttl      time.Duration
	observer Observer
}

func NewCachedEmbedder(inner ports.Embedder, store Store, model string, ttl time.Duration, observer Observer) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:    inner,
		store:    store,
		model:    model,
		ttl:      ttl,
		observer: observer,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		vector, err := c.lookup(ctx, text)
		if err != nil {
			missing = append(missing, i)
			continue
		}
		vectors[i] = vector
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	pending := make([]string, 0, len(missing))
	for _, i := range missing {
		pending = append(pending, texts[i])
	}
	fresh, err := c.inner.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(pending) {
		return nil, fmt.Errorf("embcache: expected %d vectors, got %d", len(pending), len(fresh))
	}

	for j, i := range missing {
		vectors[i] = fresh[j]
		c.put(ctx, texts[i], fresh[j])
	}
	return vectors, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embcache: empty embedding result")
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.store.Get(ctx, c.key(text))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			slog.Warn("embcache_get_failed", "error", err)
		}
		c.observe(false)
		return nil, err
	}
	vector, err := decodeVector(raw)
	if err != nil {
		slog.Warn("embcache_decode_failed", "error", err)
		c.observe(false)
		return nil, err
	}
	c.observe(true)
	return vector, nil
}

func (c *CachedEmbedder) put(ctx context.Context, text string, vector []float32) {
	if err := c.store.SetWithTTL(ctx, c.key(text), encodeVector(vector), c.ttl); err != nil {
		slog.Warn("embcache_set_failed", "error", err)
	}
}

func (c *CachedEmbedder) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(hit)
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vector []float32) []byte {
	out := make([]byte, 4+4*len(vector))
	binary.LittleEndian.PutUint32(out, uint32(len(vector)))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(out[4+4*i:], math.Float32bits(v))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("embcache: vector payload too short")
	}
	n := int(binary.LittleEndian.Uint32(raw))
	if len(raw) != 4+4*n {
		return nil, fmt.Errorf("embcache: vector payload length mismatch")
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4+4*i:]))
	}
	return out, nil
}
