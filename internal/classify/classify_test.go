package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/supai/backend/internal/index"
)

func results(scores ...float64) []index.Result {
	out := make([]index.Result, len(scores))
	for i, s := range scores {
		out[i] = index.Result{Text: "passage", Source: "doc", Similarity: s}
	}
	return out
}

func TestClassifyRetrieval(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name    string
		results []index.Result
		want    RetrievalStatus
	}{
		{"empty results", nil, RetrievalFailed},
		{"high score", results(0.92, 0.55, 0.10), RetrievalConfident},
		{"exactly confident threshold", results(0.50), RetrievalConfident},
		{"mid score", results(0.42), RetrievalUncertain},
		{"exactly uncertain threshold", results(0.30), RetrievalUncertain},
		{"low score", results(0.10), RetrievalFailed},
		{"only top score matters", results(0.75, 0.05), RetrievalConfident},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRetrieval(tt.results, thresholds)
			assert.Equal(t, tt.want, got.Status)
			assert.NotEmpty(t, got.Reason)
			if len(tt.results) > 0 {
				assert.Equal(t, tt.results[0].Similarity, got.TopScore)
			} else {
				assert.Zero(t, got.TopScore)
			}
		})
	}
}

func TestClassifyRetrievalCustomThresholds(t *testing.T) {
	thresholds := Thresholds{Confident: 0.80, Uncertain: 0.60}

	assert.Equal(t, RetrievalUncertain, ClassifyRetrieval(results(0.70), thresholds).Status)
	assert.Equal(t, RetrievalFailed, ClassifyRetrieval(results(0.55), thresholds).Status)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name       string
		retrieval  RetrievalStatus
		generation GenerationStatus
		want       FailureType
	}{
		{"retrieval failed dominates", RetrievalFailed, GenerationConfident, FailureRetrieval},
		{"retrieval failed with refusal", RetrievalFailed, GenerationRefused, FailureRetrieval},
		{"uncertain retrieval refused", RetrievalUncertain, GenerationRefused, FailureRetrieval},
		{"confident retrieval refused", RetrievalConfident, GenerationRefused, FailureGeneration},
		{"confident retrieval hedged", RetrievalConfident, GenerationHedged, FailureGenerationUncertain},
		{"uncertain retrieval hedged", RetrievalUncertain, GenerationHedged, FailureGenerationUncertain},
		{"all confident", RetrievalConfident, GenerationConfident, FailureNone},
		{"uncertain but answered", RetrievalUncertain, GenerationConfident, FailureNone},
		{"judge unknown", RetrievalConfident, GenerationUnknown, FailureNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(
				RetrievalClassification{Status: tt.retrieval},
				GenerationClassification{Status: tt.generation},
			)
			assert.Equal(t, tt.want, got)
		})
	}
}
