package evaluation

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/diagnostic"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/internal/rewrite"
)

const docText = "The quick brown fox jumps over the lazy dog near the riverbank while the farmer watches from the old wooden fence."

type stubEmbedder struct{}

func (stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float64, provider.TokenUsage, error) {
	return []float64{1, 0}, provider.TokenUsage{TotalTokens: 10}, nil
}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, provider.TokenUsage, error) {
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{1, 0}
	}
	return vectors, provider.TokenUsage{TotalTokens: 10}, nil
}

// stubCompleter plays every completion role: rewriter, generator, answer
// judge and eval scorer, keyed off the prompts.
type stubCompleter struct {
	score string
}

func (c *stubCompleter) Complete(_ context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	usage := provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}

	var content string
	switch {
	case strings.Contains(req.SystemPrompt, "search query optimizer"):
		content = "rewritten query"
	case strings.Contains(req.SystemPrompt, "answer quality judge"):
		content = `{"status": "confident", "reason": "direct"}`
	case strings.Contains(req.UserPrompt, `{"score"`):
		content = c.score
	default:
		content = "According to Source 1, the fox jumps over the dog."
	}

	return &provider.Completion{Content: content, Usage: usage}, nil
}

func newTestRunner(t *testing.T, score string) (*Runner, *pipeline.Session) {
	t.Helper()

	store, err := diagnostic.NewStore(filepath.Join(t.TempDir(), "diag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	completer := &stubCompleter{score: score}
	embedder := stubEmbedder{}

	p := pipeline.New(
		embedder,
		completer,
		rewrite.New(completer, nil),
		classify.NewJudge(completer),
		store,
		budget.Rates{},
		classify.DefaultThresholds(),
		pipeline.Limits{MaxSources: 5, MaxFileSizeMB: 10, MaxChunks: 500, TopK: 3, EmbedBatchSize: 100},
	)

	manager := pipeline.NewManager(0.10)
	s := manager.Create()

	_, err = p.Ingest(context.Background(), s, []pipeline.IngestInput{
		{Name: "fox.txt", Data: []byte(docText)},
	}, nil)
	require.NoError(t, err)

	return NewRunner(p, completer), s
}

func TestLoadCases(t *testing.T) {
	data := []byte(`[
		{"id": "c1", "question": "what does the fox do?", "expected_answer": "jumps over the dog", "should_answer": true},
		{"id": "c2", "question": "who won the 1994 world cup?", "should_answer": false}
	]`)

	cases, err := LoadCases(data)

	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "c1", cases[0].ID)
	assert.True(t, cases[0].ShouldAnswer)
	assert.False(t, cases[1].ShouldAnswer)
}

func TestLoadCasesInvalidJSON(t *testing.T) {
	_, err := LoadCases([]byte("not json"))
	assert.Error(t, err)
}

func TestRunScoresCases(t *testing.T) {
	r, s := newTestRunner(t, `{"score": 4, "reason": "mostly correct"}`)

	cases := []Case{
		{ID: "c1", Question: "what does the fox do?", ExpectedAnswer: "jumps over the dog", ShouldAnswer: true},
		{ID: "c2", Question: "where is the farmer?", ExpectedAnswer: "by the fence", ShouldAnswer: true},
	}

	report, err := r.Run(context.Background(), s, cases)

	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalCases)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 4, report.Results[0].Score)
	assert.Equal(t, "mostly correct", report.Results[0].ScoreReason)
	assert.InDelta(t, 4.0, report.AverageScore, 1e-9)
	assert.Equal(t, 2, report.FailureCounts[classify.FailureNone])
}

func TestRunContinuesPastUnscorableAnswer(t *testing.T) {
	r, s := newTestRunner(t, "the judge rambled instead of returning JSON")

	cases := []Case{
		{ID: "c1", Question: "what does the fox do?", ExpectedAnswer: "jumps", ShouldAnswer: true},
	}

	report, err := r.Run(context.Background(), s, cases)

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 0, report.Results[0].Score)
	assert.Contains(t, report.Results[0].ScoreReason, "scoring failed")
}

func TestFormatReport(t *testing.T) {
	report := &Report{
		TotalCases:   2,
		AverageScore: 4.5,
		TotalCost:    0.0123,
		FailureCounts: map[classify.FailureType]int{
			classify.FailureNone:      1,
			classify.FailureRetrieval: 1,
		},
	}

	out := FormatReport(report)

	assert.Contains(t, out, "Total Cases: 2")
	assert.Contains(t, out, "Average Score: 4.50 / 5.0")
	assert.Contains(t, out, "retrieval_failure: 1")
}
