// Package classify judges retrieval confidence and answer quality and
// derives a single overall failure category from the two.
package classify

import (
	"fmt"

	"github.com/supai/backend/internal/index"
)

type RetrievalStatus string

const (
	RetrievalConfident RetrievalStatus = "confident"
	RetrievalUncertain RetrievalStatus = "uncertain"
	RetrievalFailed    RetrievalStatus = "failed"
)

type GenerationStatus string

const (
	GenerationRefused   GenerationStatus = "refused"
	GenerationHedged    GenerationStatus = "hedged"
	GenerationConfident GenerationStatus = "confident"
	GenerationUnknown   GenerationStatus = "unknown"
)

type FailureType string

const (
	FailureRetrieval           FailureType = "retrieval_failure"
	FailureGeneration          FailureType = "generation_failure"
	FailureGenerationUncertain FailureType = "generation_uncertain"
	FailureNone                FailureType = "none"
)

type RetrievalClassification struct {
	Status   RetrievalStatus `json:"status"`
	Reason   string          `json:"reason"`
	TopScore float64         `json:"top_score"`
}

type GenerationClassification struct {
	Status GenerationStatus `json:"status"`
	Reason string           `json:"reason"`
}

// Thresholds are the similarity cutoffs for retrieval confidence. They are
// a reconstruction, not a verified contract, so they stay configurable.
type Thresholds struct {
	Confident float64
	Uncertain float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Confident: 0.50, Uncertain: 0.30}
}

// ClassifyRetrieval derives a status from the similarity of the single
// best result. An empty result list is a retrieval failure, not an error.
func ClassifyRetrieval(results []index.Result, t Thresholds) RetrievalClassification {
	if len(results) == 0 {
		return RetrievalClassification{
			Status:   RetrievalFailed,
			Reason:   "no passages retrieved",
			TopScore: 0,
		}
	}

	topScore := results[0].Similarity

	switch {
	case topScore >= t.Confident:
		return RetrievalClassification{
			Status:   RetrievalConfident,
			Reason:   fmt.Sprintf("top similarity %.4f at or above %.2f", topScore, t.Confident),
			TopScore: topScore,
		}
	case topScore >= t.Uncertain:
		return RetrievalClassification{
			Status:   RetrievalUncertain,
			Reason:   fmt.Sprintf("top similarity %.4f between %.2f and %.2f", topScore, t.Uncertain, t.Confident),
			TopScore: topScore,
		}
	default:
		return RetrievalClassification{
			Status:   RetrievalFailed,
			Reason:   fmt.Sprintf("top similarity %.4f below %.2f", topScore, t.Uncertain),
			TopScore: topScore,
		}
	}
}

// Combine maps the two stage classifications to one overall failure
// category. The rules are evaluated in order; rules 1 and 2 both yield a
// retrieval failure but for logically distinct causes, which the reason
// fields upstream preserve.
func Combine(retrieval RetrievalClassification, generation GenerationClassification) FailureType {
	switch {
	case retrieval.Status == RetrievalFailed:
		return FailureRetrieval
	case retrieval.Status == RetrievalUncertain && generation.Status == GenerationRefused:
		return FailureRetrieval
	case retrieval.Status == RetrievalConfident && generation.Status == GenerationRefused:
		return FailureGeneration
	case generation.Status == GenerationHedged:
		return FailureGenerationUncertain
	default:
		return FailureNone
	}
}
