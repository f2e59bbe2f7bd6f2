// Package retrieval produces candidate occupation shortlists for a free-text
// description: embed the text, query a named vector index, and map the ranked
// hits to candidate strings. Both stages are memoized so identical inputs
// never touch a provider twice in a process lifetime.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"soccode/internal/cache"
	"soccode/internal/config"
	"soccode/internal/embedding"
	"soccode/internal/logging"
	"soccode/internal/search"
)

// CandidateSet is the outcome of one retrieval: an ordered shortlist of
// candidate strings drawn from the named index. For code indexes the
// candidates are occupation codes; for title-description indexes they are
// deduplicated descriptions.
type CandidateSet struct {
	Index      string   `json:"index"`
	K          int      `json:"k"`
	Candidates []string `json:"candidates"`
}

// shortlistKey identifies a memoized index query by the exact vector content,
// not its identity. Two equal vectors produce equal digests.
type shortlistKey struct {
	digest [sha256.Size]byte
	index  string
	k      int
}

// Retriever turns free text into candidate shortlists. It owns the shortlist
// cache; embedding memoization lives in the engine it wraps.
type Retriever struct {
	engine    embedding.Engine
	searcher  search.Searcher
	shortlist *cache.LRU[shortlistKey, []search.Match]
	cfg       *config.Config
}

// NewRetriever creates a retriever over the given engine and search backend.
func NewRetriever(engine embedding.Engine, searcher search.Searcher, cfg *config.Config) *Retriever {
	return &Retriever{
		engine:    engine,
		searcher:  searcher,
		shortlist: cache.New[shortlistKey, []search.Match](cfg.Retrieval.CacheCapacity),
		cfg:       cfg,
	}
}

// Retrieve embeds text and returns the top-k candidates from the named index.
// Empty index or non-positive k fall back to the configured defaults.
func (r *Retriever) Retrieve(ctx context.Context, text, index string, k int) (*CandidateSet, error) {
	if index == "" {
		index = r.cfg.Retrieval.DefaultIndex
	}
	if k <= 0 {
		k = r.cfg.Retrieval.DefaultK
	}

	startTime := time.Now()
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	// Embedding providers handle newlines poorly; flatten before embedding.
	query := collapseNewlines(text)

	vector, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}

	matches, err := r.query(ctx, index, vector, k)
	if err != nil {
		return nil, err
	}

	set := &CandidateSet{
		Index:      index,
		K:          k,
		Candidates: r.mapMatches(index, matches),
	}
	logging.Retrieval("retrieved %d candidates from %s in %v", len(set.Candidates), index, time.Since(startTime))
	return set, nil
}

// query consults the shortlist cache before touching the search backend.
// Only successful results are cached.
func (r *Retriever) query(ctx context.Context, index string, vector []float32, k int) ([]search.Match, error) {
	key := shortlistKey{digest: vectorDigest(vector), index: index, k: k}

	if matches, ok := r.shortlist.Get(key); ok {
		logging.CacheDebug("shortlist cache hit: index=%s k=%d", index, k)
		return matches, nil
	}

	matches, err := r.searcher.Query(ctx, index, vector, k)
	if err != nil {
		return nil, err
	}

	r.shortlist.Put(key, matches)
	return matches, nil
}

// mapMatches converts ranked hits to candidate strings. Title-description
// indexes yield descriptions with duplicates collapsed to their first-seen
// position; code indexes yield the hit IDs in rank order.
func (r *Retriever) mapMatches(index string, matches []search.Match) []string {
	if !r.cfg.IsTitleDescriptionIndex(index) {
		candidates := make([]string, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, m.ID)
		}
		return candidates
	}

	seen := make(map[string]bool, len(matches))
	candidates := make([]string, 0, len(matches))
	for _, m := range matches {
		desc := m.Metadata["description"]
		if desc == "" {
			// A title-description hit without metadata still names a code.
			desc = m.ID
		}
		if seen[desc] {
			continue
		}
		seen[desc] = true
		candidates = append(candidates, desc)
	}
	return candidates
}

// CacheStats returns cumulative shortlist cache hit and miss counts.
func (r *Retriever) CacheStats() (hits, misses int64) {
	return r.shortlist.Stats()
}

// collapseNewlines replaces every newline with a single space.
func collapseNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", " "), "\n", " ")
}

// vectorDigest hashes the vector's exact float bit patterns so equal vectors
// compare equal regardless of which allocation produced them.
func vectorDigest(vector []float32) [sha256.Size]byte {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	var digest [sha256.Size]byte
	h.Sum(digest[:0])
	return digest
}
