// Package evaluation runs a labeled question set through the pipeline and
// scores the answers with an LLM judge.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/logger"
)

// Case is one labeled test question. ShouldAnswer is false for questions
// deliberately outside the loaded sources, where refusing is the correct
// behavior.
type Case struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
	ShouldAnswer   bool   `json:"should_answer"`
}

type CaseResult struct {
	ID               string                    `json:"id"`
	Question         string                    `json:"question"`
	RewrittenQuery   string                    `json:"rewritten_query"`
	ActualAnswer     string                    `json:"actual_answer"`
	RetrievalStatus  classify.RetrievalStatus  `json:"retrieval_status"`
	RetrievalScore   float64                   `json:"retrieval_score"`
	GenerationStatus classify.GenerationStatus `json:"generation_status"`
	FailureType      classify.FailureType      `json:"failure_type"`
	Score            int                       `json:"score"`
	ScoreReason      string                    `json:"score_reason"`
	LatencyMS        int                       `json:"latency_ms"`
	Error            string                    `json:"error,omitempty"`
}

type Report struct {
	TotalCases       int                          `json:"total_cases"`
	AverageScore     float64                      `json:"average_score"`
	AverageLatencyMS float64                      `json:"average_latency_ms"`
	FailureCounts    map[classify.FailureType]int `json:"failure_counts"`
	TotalCost        float64                      `json:"total_cost"`
	Results          []CaseResult                 `json:"results"`
}

type Runner struct {
	pipeline  *pipeline.Pipeline
	completer provider.CompletionProvider
}

func NewRunner(p *pipeline.Pipeline, completer provider.CompletionProvider) *Runner {
	return &Runner{pipeline: p, completer: completer}
}

func LoadCases(data []byte) ([]Case, error) {
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal eval cases: %w", err)
	}
	return cases, nil
}

// Run drives every case through the session's pipeline and judges the
// answers. A case that errors scores zero and the run continues.
func (r *Runner) Run(ctx context.Context, s *pipeline.Session, cases []Case) (*Report, error) {
	logger.Info("Running evaluation", zap.Int("cases", len(cases)))

	report := &Report{
		TotalCases:    len(cases),
		FailureCounts: make(map[classify.FailureType]int),
	}

	var totalScore, totalLatency float64

	for i, c := range cases {
		logger.Info("Evaluating case",
			zap.Int("index", i+1),
			zap.Int("total", len(cases)),
			zap.String("id", c.ID),
		)

		result := CaseResult{ID: c.ID, Question: c.Question}

		start := time.Now()
		answer, err := r.pipeline.Ask(ctx, s, c.Question)
		result.LatencyMS = int(time.Since(start).Milliseconds())

		if err != nil {
			logger.Error("Case failed", zap.String("id", c.ID), zap.Error(err))
			result.Error = err.Error()
			result.ScoreReason = "pipeline error"
			report.Results = append(report.Results, result)
			continue
		}

		result.RewrittenQuery = answer.RewrittenQuery
		result.ActualAnswer = answer.Text
		result.RetrievalStatus = answer.Retrieval.Status
		result.RetrievalScore = answer.Retrieval.TopScore
		result.GenerationStatus = answer.Generation.Status
		result.FailureType = answer.Failure
		report.FailureCounts[answer.Failure]++
		report.TotalCost += answer.Cost

		result.Score, result.ScoreReason = r.scoreAnswer(ctx, c, answer.Text)

		totalScore += float64(result.Score)
		totalLatency += float64(result.LatencyMS)
		report.Results = append(report.Results, result)
	}

	if report.TotalCases > 0 {
		report.AverageScore = totalScore / float64(report.TotalCases)
		report.AverageLatencyMS = totalLatency / float64(report.TotalCases)
	}

	logger.Info("Evaluation complete",
		zap.Float64("average_score", report.AverageScore),
		zap.Float64("total_cost", report.TotalCost),
	)

	return report, nil
}

type scoreVerdict struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// scoreAnswer rates an answer 1-5 against the expected behavior. Judge
// failures score 0 with the failure in the reason, mirroring how the
// pipeline's own classification degrades rather than aborts.
func (r *Runner) scoreAnswer(ctx context.Context, c Case, actual string) (int, string) {
	var prompt string

	if c.ShouldAnswer {
		prompt = fmt.Sprintf(`You are an answer quality judge. Score the AI's answer from 1 to 5.

Question: %s
Expected answer: %s
AI's actual answer: %s

Scoring guide:
5 - Correct and complete, matches expected answer
4 - Mostly correct, minor details missing
3 - Partially correct, key facts present but incomplete
2 - Mostly wrong or missing key facts
1 - Completely wrong or hallucinated

Reply ONLY with a JSON object like:
{"score": 4, "reason": "brief explanation"}`, c.Question, c.ExpectedAnswer, actual)
	} else {
		prompt = fmt.Sprintf(`You are an answer quality judge. The AI should have REFUSED to answer this question because it's outside the knowledge base.

Question: %s
AI's actual answer: %s

Score the AI's response from 1 to 5:
5 - Correctly refused and explained it doesn't have this information
4 - Refused but explanation was vague
3 - Partially refused but gave some irrelevant answer
2 - Tried to answer despite not having the information
1 - Confidently gave a wrong answer (hallucinated)

Reply ONLY with a JSON object like:
{"score": 4, "reason": "brief explanation"}`, c.Question, actual)
	}

	resp, err := r.completer.Complete(ctx, provider.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: 0,
		MaxTokens:   100,
	})
	if err != nil {
		return 0, fmt.Sprintf("scoring failed: %v", err)
	}

	cleaned := strings.TrimSpace(resp.Content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var verdict scoreVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &verdict); err != nil {
		return 0, fmt.Sprintf("scoring failed: %v", err)
	}

	return verdict.Score, verdict.Reason
}

// MarshalReport renders the full report, per-case results included, as
// indented JSON for archiving alongside the run.
func MarshalReport(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

func FormatReport(report *Report) string {
	var b strings.Builder

	b.WriteString("Evaluation Report\n")
	b.WriteString("=================\n\n")
	b.WriteString(fmt.Sprintf("Total Cases: %d\n", report.TotalCases))
	b.WriteString(fmt.Sprintf("Average Score: %.2f / 5.0\n", report.AverageScore))
	b.WriteString(fmt.Sprintf("Average Latency: %.0f ms\n", report.AverageLatencyMS))
	b.WriteString(fmt.Sprintf("Total Cost: $%.4f\n\n", report.TotalCost))

	b.WriteString("Failure Types:\n")
	for _, ft := range []classify.FailureType{
		classify.FailureNone,
		classify.FailureRetrieval,
		classify.FailureGeneration,
		classify.FailureGenerationUncertain,
	} {
		b.WriteString(fmt.Sprintf("- %s: %d\n", ft, report.FailureCounts[ft]))
	}

	return b.String()
}
