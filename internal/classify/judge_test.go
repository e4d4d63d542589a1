package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supai/backend/internal/index"
	"github.com/supai/backend/internal/provider"
)

type stubCompleter struct {
	content    string
	err        error
	calls      int
	lastPrompt string
}

func (s *stubCompleter) Complete(_ context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	s.calls++
	s.lastPrompt = req.UserPrompt
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Completion{
		Content: s.content,
		Usage:   provider.TokenUsage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	}, nil
}

func TestJudgeClassifyVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    GenerationStatus
	}{
		{"confident", `{"status": "confident", "reason": "direct answer"}`, GenerationConfident},
		{"refused", `{"status": "refused", "reason": "says it lacks info"}`, GenerationRefused},
		{"hedged", `{"status": "hedged", "reason": "qualified with maybe"}`, GenerationHedged},
		{"fenced json", "```json\n{\"status\": \"confident\", \"reason\": \"ok\"}\n```", GenerationConfident},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewJudge(&stubCompleter{content: tt.content})

			got, usage := j.Classify(context.Background(), "q", results(0.9), "answer")

			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, 60, usage.TotalTokens)
		})
	}
}

func TestJudgeDegradesToUnknownOnProviderError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("provider down")}
	j := NewJudge(stub)

	got, usage := j.Classify(context.Background(), "q", results(0.9), "answer")

	assert.Equal(t, GenerationUnknown, got.Status)
	assert.Contains(t, got.Reason, "judge call failed")
	assert.Zero(t, usage.TotalTokens)
}

func TestJudgeDegradesToUnknownOnBadOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "the answer looks confident to me"},
		{"invalid status", `{"status": "great", "reason": "x"}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewJudge(&stubCompleter{content: tt.content})

			got, _ := j.Classify(context.Background(), "q", results(0.9), "answer")

			assert.Equal(t, GenerationUnknown, got.Status)
		})
	}
}

func TestJudgeTruncatesPassagesOnRuneBoundary(t *testing.T) {
	stub := &stubCompleter{content: `{"status": "confident", "reason": "ok"}`}
	j := NewJudge(stub)

	long := index.Result{
		Text:       strings.Repeat("é", judgePassagePreview+50),
		Source:     "doc",
		Similarity: 0.9,
	}

	j.Classify(context.Background(), "q", []index.Result{long}, "answer")

	require.NotEmpty(t, stub.lastPrompt)
	assert.True(t, utf8.ValidString(stub.lastPrompt))
	assert.Contains(t, stub.lastPrompt, strings.Repeat("é", judgePassagePreview))
	assert.NotContains(t, stub.lastPrompt, strings.Repeat("é", judgePassagePreview+1))
}

func TestParseVerdictDefaultsReason(t *testing.T) {
	verdict, err := parseVerdict(`{"status": "confident"}`)

	require.NoError(t, err)
	assert.Equal(t, "no reason given", verdict.Reason)
}
