package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/supai/backend/internal/index"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/logger"
)

const judgeSystemPrompt = `You are an answer quality judge for a retrieval-based assistant.

Given a question, the retrieved context passages and the assistant's answer, classify the answer as exactly one of:
- "refused": the answer states it lacks information or cannot answer from the context
- "hedged": a partial answer qualified with explicit uncertainty
- "confident": a direct, complete answer

Reply ONLY with a JSON object like:
{"status": "confident", "reason": "brief explanation"}`

// Passages longer than this many characters are cut before being shown
// to the judge.
const judgePassagePreview = 300

// Judge classifies generated answers with an LLM-as-judge completion
// call. Parse failures and provider errors degrade to the unknown status
// so the diagnostic pipeline stays available when the judge is broken.
type Judge struct {
	completer provider.CompletionProvider
}

func NewJudge(completer provider.CompletionProvider) *Judge {
	return &Judge{completer: completer}
}

type judgeVerdict struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Classify never returns an error: a judge that cannot be reached or
// parsed yields GenerationUnknown with a reason. The returned usage is
// zero in that case only if no call completed.
func (j *Judge) Classify(ctx context.Context, question string, results []index.Result, answer string) (GenerationClassification, provider.TokenUsage) {
	var contextBlock strings.Builder
	for i, r := range results {
		preview := r.Text
		if utf8.RuneCountInString(preview) > judgePassagePreview {
			preview = string([]rune(preview)[:judgePassagePreview])
		}
		contextBlock.WriteString(fmt.Sprintf("[Passage %d: %s]\n%s\n", i+1, r.Source, preview))
	}

	userPrompt := fmt.Sprintf(`Question: %s

Context passages:
%s
Assistant's answer: %s

Classify the answer. JSON only.`, question, contextBlock.String(), answer)

	resp, err := j.completer.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0,
		MaxTokens:    150,
	})
	if err != nil {
		logger.Warn("Judge call failed", zap.Error(err))
		return GenerationClassification{
			Status: GenerationUnknown,
			Reason: fmt.Sprintf("judge call failed: %v", err),
		}, provider.TokenUsage{}
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		logger.Warn("Judge verdict unparseable",
			zap.Error(err),
			zap.String("raw", resp.Content),
		)
		return GenerationClassification{
			Status: GenerationUnknown,
			Reason: fmt.Sprintf("could not parse judge verdict: %v", err),
		}, resp.Usage
	}

	return GenerationClassification{
		Status: GenerationStatus(verdict.Status),
		Reason: verdict.Reason,
	}, resp.Usage
}

// parseVerdict validates the judge's free-form output against the strict
// verdict schema at the boundary where it is received.
func parseVerdict(raw string) (*judgeVerdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch GenerationStatus(verdict.Status) {
	case GenerationRefused, GenerationHedged, GenerationConfident:
	default:
		return nil, fmt.Errorf("unrecognized status %q", verdict.Status)
	}

	if verdict.Reason == "" {
		verdict.Reason = "no reason given"
	}

	return &verdict, nil
}
