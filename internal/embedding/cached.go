package embedding

import (
	"context"

	"soccode/internal/cache"
	"soccode/internal/logging"
)

// Key identifies a memoized embedding: the exact input tuple, no
// normalization beyond what the caller already performs.
type Key struct {
	Text       string
	Model      string
	Dimensions int
}

// CachedEngine memoizes an Engine through a bounded concurrent LRU.
// Failures are never cached; only successful vectors enter the cache.
type CachedEngine struct {
	engine Engine
	cache  *cache.LRU[Key, []float32]
}

// NewCachedEngine wraps engine with an LRU of the given capacity.
func NewCachedEngine(engine Engine, capacity int) *CachedEngine {
	return &CachedEngine{
		engine: engine,
		cache:  cache.New[Key, []float32](capacity),
	}
}

// Embed returns a cached vector when the (text, model, dimensions) tuple has
// been seen, otherwise computes and caches it.
func (e *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key{Text: text, Model: e.engine.Model(), Dimensions: e.engine.Dimensions()}

	if vector, ok := e.cache.Get(key); ok {
		logging.CacheDebug("embedding cache hit: model=%s text_len=%d", key.Model, len(text))
		return vector, nil
	}

	vector, err := e.engine.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Put(key, vector)
	logging.CacheDebug("embedding cached: model=%s text_len=%d dims=%d", key.Model, len(text), len(vector))
	return vector, nil
}

// Model returns the underlying engine's model identifier.
func (e *CachedEngine) Model() string {
	return e.engine.Model()
}

// Dimensions returns the underlying engine's dimensionality.
func (e *CachedEngine) Dimensions() int {
	return e.engine.Dimensions()
}

// Stats returns cumulative cache hit and miss counts.
func (e *CachedEngine) Stats() (hits, misses int64) {
	return e.cache.Stats()
}

var _ Engine = (*CachedEngine)(nil)
