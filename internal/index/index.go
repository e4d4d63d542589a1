// Package index holds the per-session similarity index and the
// brute-force cosine retriever over it.
package index

import (
	"math"
	"sort"
	"sync"

	"github.com/supai/backend/internal/chunker"
)

// Entry is an indexed passage: the passage plus its embedding. All
// embeddings in one index share a dimensionality; the embedding provider
// guarantees this, the index does not re-check it.
type Entry struct {
	chunker.Passage
	Embedding []float64
}

// Result is a ranked match for a query. Derived per query, never stored.
type Result struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Index is an append-only sequence of entries for the lifetime of a
// session. Entries are never mutated or removed.
type Index struct {
	mu      sync.RWMutex
	entries []Entry
}

func New() *Index {
	return &Index{}
}

func (ix *Index) Add(passage chunker.Passage, embedding []float64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, Entry{Passage: passage, Embedding: embedding})
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Sources returns the distinct source identifiers present in the index,
// in first-seen order.
func (ix *Index) Sources() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[string]struct{})
	var sources []string
	for _, e := range ix.entries {
		if _, ok := seen[e.Source]; !ok {
			seen[e.Source] = struct{}{}
			sources = append(sources, e.Source)
		}
	}
	return sources
}

// Retrieve ranks every indexed entry against the query vector and returns
// the topK best, sorted by similarity descending with ties kept in
// insertion order. An empty index yields an empty result, not an error.
func (ix *Index) Retrieve(queryVector []float64, topK int) []Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, Result{
			Text:       e.Text,
			Source:     e.Source,
			Similarity: CosineSimilarity(queryVector, e.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topK < 0 {
		topK = 0
	}
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK]
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector has
// zero magnitude ("no signal", not an error).
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
