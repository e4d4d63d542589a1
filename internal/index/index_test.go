package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supai/backend/internal/chunker"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1.0},
		{"opposite", []float64{1, 2, 3}, []float64{-1, -2, -3}, -1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"zero vector left", []float64{0, 0, 0}, []float64{1, 2, 3}, 0.0},
		{"zero vector right", []float64{1, 2, 3}, []float64{0, 0, 0}, 0.0},
		{"both zero", []float64{0, 0}, []float64{0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func passage(text string, id int) chunker.Passage {
	return chunker.Passage{Text: text, Source: "doc", ChunkID: id}
}

func TestRetrieveRanksDescending(t *testing.T) {
	ix := New()
	ix.Add(passage("weak", 0), []float64{0.1, 1.0})
	ix.Add(passage("strong", 1), []float64{1.0, 0.02})
	ix.Add(passage("medium", 2), []float64{1.0, 0.8})

	results := ix.Retrieve([]float64{1, 0}, 3)

	require.Len(t, results, 3)
	assert.Equal(t, "strong", results[0].Text)
	assert.Equal(t, "medium", results[1].Text)
	assert.Equal(t, "weak", results[2].Text)
	assert.True(t, results[0].Similarity >= results[1].Similarity)
	assert.True(t, results[1].Similarity >= results[2].Similarity)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	ix := New()
	ix.Add(passage("a", 0), []float64{1, 0})
	ix.Add(passage("b", 1), []float64{0.9, 0.1})
	ix.Add(passage("c", 2), []float64{0, 1})

	results := ix.Retrieve([]float64{1, 0}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "b", results[1].Text)
}

func TestRetrieveTopKLargerThanIndex(t *testing.T) {
	ix := New()
	ix.Add(passage("only", 0), []float64{1, 0})

	results := ix.Retrieve([]float64{1, 0}, 10)

	assert.Len(t, results, 1)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	ix := New()
	assert.Empty(t, ix.Retrieve([]float64{1, 0}, 3))
}

func TestRetrieveStableTies(t *testing.T) {
	ix := New()
	ix.Add(passage("first", 0), []float64{1, 0})
	ix.Add(passage("second", 1), []float64{1, 0})
	ix.Add(passage("third", 2), []float64{1, 0})

	results := ix.Retrieve([]float64{1, 0}, 3)

	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, "second", results[1].Text)
	assert.Equal(t, "third", results[2].Text)
}

func TestSourcesFirstSeenOrder(t *testing.T) {
	ix := New()
	ix.Add(chunker.Passage{Text: "a", Source: "one.txt", ChunkID: 0}, []float64{1})
	ix.Add(chunker.Passage{Text: "b", Source: "two.txt", ChunkID: 0}, []float64{1})
	ix.Add(chunker.Passage{Text: "c", Source: "one.txt", ChunkID: 1}, []float64{1})

	assert.Equal(t, []string{"one.txt", "two.txt"}, ix.Sources())
	assert.Equal(t, 3, ix.Len())
}
