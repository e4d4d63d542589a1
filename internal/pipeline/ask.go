package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/index"
	"github.com/supai/backend/internal/metrics"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/logger"
)

const answerSystemPrompt = `You are a helpful AI assistant that answers questions based ONLY on the provided context.

Rules:
1. Use ONLY information from the provided sources
2. Cite sources explicitly (e.g., "According to Source 1...")
3. If the context doesn't contain enough information, say so clearly
4. Do not use your general knowledge - only use what's in the context
5. Keep answers concise and relevant`

const refusalAnswer = "I couldn't find information relevant to your question in the loaded sources, " +
	"so I can't answer it confidently. Try rephrasing the question or adding more documents."

// Answer is the full outcome of one question, including the two stage
// classifications and the derived overall failure category.
type Answer struct {
	ID             string                            `json:"id"`
	Question       string                            `json:"question"`
	RewrittenQuery string                            `json:"rewritten_query"`
	Text           string                            `json:"answer"`
	Sources        []index.Result                    `json:"sources"`
	Retrieval      classify.RetrievalClassification  `json:"retrieval"`
	Generation     classify.GenerationClassification `json:"generation"`
	Failure        classify.FailureType              `json:"overall_failure_type"`
	Cost           float64                           `json:"cost"`
	LatencyMS      int                               `json:"latency_ms"`
}

// Ask runs one question through the pipeline. Provider failures abort the
// question without corrupting the session's index or ledger; budget
// exhaustion is checked before every paid call.
func (p *Pipeline) Ask(ctx context.Context, s *Session, question string) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startTime := time.Now()
	questionID := uuid.New().String()

	logger.Info("Processing question",
		zap.String("question_id", questionID),
		zap.String("session_id", s.ID),
	)

	if s.index.Len() == 0 {
		return nil, ErrEmptyIndex
	}

	if s.ledger.Exceeded() {
		metrics.BudgetRefusals.Inc()
		return nil, budget.ErrBudgetExceeded
	}

	var totalCost float64
	charge := func(cost float64) {
		s.ledger.Charge(cost)
		totalCost += cost
		metrics.CostUSD.Add(cost)
	}

	// Query normalization. Falls back to the original question on any
	// failure; either way the pipeline continues.
	rewriteStart := time.Now()
	rewritten, rewriteUsage := p.rewriter.Rewrite(ctx, question)
	charge(p.rates.CompletionCost(rewriteUsage))
	metrics.TokensUsed.WithLabelValues("completion").Add(float64(rewriteUsage.TotalTokens))
	metrics.QuestionDuration.WithLabelValues("rewrite").Observe(time.Since(rewriteStart).Seconds())

	// Retrieval.
	if s.ledger.Exceeded() {
		metrics.BudgetRefusals.Inc()
		return nil, budget.ErrBudgetExceeded
	}

	retrievalStart := time.Now()
	queryVector, embedUsage, err := p.embedder.EmbedQuery(ctx, rewritten)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	charge(p.rates.EmbeddingCost(embedUsage))
	metrics.TokensUsed.WithLabelValues("embedding").Add(float64(embedUsage.TotalTokens))

	results := s.index.Retrieve(queryVector, p.limits.TopK)
	metrics.QuestionDuration.WithLabelValues("retrieval").Observe(time.Since(retrievalStart).Seconds())

	retrievalClass := classify.ClassifyRetrieval(results, p.thresholds)
	metrics.RetrievalStatus.WithLabelValues(string(retrievalClass.Status)).Inc()

	// Generation, or refusal when retrieval found nothing usable. The
	// refusal spends no completion tokens.
	var answerText string
	if retrievalClass.Status == classify.RetrievalFailed {
		answerText = refusalAnswer
	} else {
		if s.ledger.Exceeded() {
			metrics.BudgetRefusals.Inc()
			return nil, budget.ErrBudgetExceeded
		}

		generationStart := time.Now()
		completion, err := p.completer.Complete(ctx, provider.CompletionRequest{
			SystemPrompt: answerSystemPrompt,
			UserPrompt:   buildAnswerPrompt(question, results),
			Temperature:  0,
			MaxTokens:    1024,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate answer: %w", err)
		}
		charge(p.rates.CompletionCost(completion.Usage))
		metrics.TokensUsed.WithLabelValues("completion").Add(float64(completion.Usage.TotalTokens))
		metrics.QuestionDuration.WithLabelValues("generation").Observe(time.Since(generationStart).Seconds())

		answerText = completion.Content
	}

	// Judging. A broken or unaffordable judge degrades to unknown; it
	// never fails the question.
	var generationClass classify.GenerationClassification
	if s.ledger.Exceeded() {
		metrics.BudgetRefusals.Inc()
		generationClass = classify.GenerationClassification{
			Status: classify.GenerationUnknown,
			Reason: "budget exceeded before answer could be judged",
		}
	} else {
		var judgeUsage provider.TokenUsage
		generationClass, judgeUsage = p.judge.Classify(ctx, question, results, answerText)
		charge(p.rates.CompletionCost(judgeUsage))
		metrics.TokensUsed.WithLabelValues("completion").Add(float64(judgeUsage.TotalTokens))
	}
	metrics.GenerationStatus.WithLabelValues(string(generationClass.Status)).Inc()

	if _, err := p.store.Log(s.ID, question, rewritten, retrievalClass, generationClass, results, answerText); err != nil {
		// A failed diagnostic write shouldn't cost the user their answer.
		logger.Error("Failed to log diagnostic entry", zap.Error(err))
	}

	failure := classify.Combine(retrievalClass, generationClass)
	metrics.QuestionsTotal.WithLabelValues(string(failure)).Inc()

	latency := int(time.Since(startTime).Milliseconds())
	metrics.QuestionDuration.WithLabelValues("total").Observe(time.Since(startTime).Seconds())

	logger.Info("Question processed",
		zap.String("question_id", questionID),
		zap.String("retrieval_status", string(retrievalClass.Status)),
		zap.String("generation_status", string(generationClass.Status)),
		zap.String("failure_type", string(failure)),
		zap.Float64("cost", totalCost),
		zap.Int("latency_ms", latency),
	)

	return &Answer{
		ID:             questionID,
		Question:       question,
		RewrittenQuery: rewritten,
		Text:           answerText,
		Sources:        results,
		Retrieval:      retrievalClass,
		Generation:     generationClass,
		Failure:        failure,
		Cost:           totalCost,
		LatencyMS:      latency,
	}, nil
}

func buildAnswerPrompt(question string, results []index.Result) string {
	var context strings.Builder
	for i, r := range results {
		context.WriteString(fmt.Sprintf("\n[Source %d: %s]\n%s\n", i+1, r.Source, r.Text))
	}

	return fmt.Sprintf(`Context from loaded documents:
%s

Question: %s

Answer the question using only the information above. Cite your sources.`, context.String(), question)
}
