// Package diagnostic persists one structured record per question for
// offline failure analysis.
package diagnostic

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/index"
)

// AnswerPreviewLength bounds the answer excerpt stored with each entry,
// counted in characters.
const AnswerPreviewLength = 200

// Entry is an immutable, timestamped diagnostic record. Entries are
// appended once and never updated or deleted.
type Entry struct {
	ID             int64                `json:"-"`
	SessionID      string               `json:"-"`
	Timestamp      time.Time            `json:"timestamp"`
	Question       string               `json:"question"`
	RewrittenQuery string               `json:"rewritten_query"`
	Retrieval      RetrievalBlock       `json:"retrieval"`
	Generation     GenerationBlock      `json:"generation"`
	OverallFailure classify.FailureType `json:"overall_failure_type"`
	AnswerPreview  string               `json:"answer_preview"`
}

type RetrievalBlock struct {
	Status           classify.RetrievalStatus `json:"status"`
	Reason           string                   `json:"reason"`
	TopScore         float64                  `json:"top_score"`
	SourcesRetrieved []string                 `json:"sources_retrieved"`
	ScoresPerSource  []SourceScore            `json:"scores_per_source"`
}

type SourceScore struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

type GenerationBlock struct {
	Status classify.GenerationStatus `json:"status"`
	Reason string                    `json:"reason"`
}

func newEntry(
	sessionID, question, rewrittenQuery string,
	retrieval classify.RetrievalClassification,
	generation classify.GenerationClassification,
	results []index.Result,
	answer string,
) Entry {
	sources := make([]string, 0, len(results))
	scores := make([]SourceScore, 0, len(results))
	for _, r := range results {
		sources = append(sources, r.Source)
		scores = append(scores, SourceScore{
			Source: r.Source,
			Score:  roundScore(r.Similarity),
		})
	}

	preview := truncateRunes(answer, AnswerPreviewLength)

	return Entry{
		SessionID:      sessionID,
		Timestamp:      time.Now(),
		Question:       question,
		RewrittenQuery: rewrittenQuery,
		Retrieval: RetrievalBlock{
			Status:           retrieval.Status,
			Reason:           retrieval.Reason,
			TopScore:         retrieval.TopScore,
			SourcesRetrieved: sources,
			ScoresPerSource:  scores,
		},
		Generation: GenerationBlock{
			Status: generation.Status,
			Reason: generation.Reason,
		},
		OverallFailure: classify.Combine(retrieval, generation),
		AnswerPreview:  preview,
	}
}

// Scores are rounded to four decimals for readability in the log.
func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}

// truncateRunes cuts s to at most n characters without splitting a
// multi-byte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
