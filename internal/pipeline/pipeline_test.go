package pipeline

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
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/internal/rewrite"
)

const docText = "The quick brown fox jumps over the lazy dog near the riverbank while the farmer watches from the old wooden fence."

type stubEmbedder struct {
	queryVec   []float64
	batchVec   []float64
	usage      provider.TokenUsage
	queryCalls int
	batchCalls int
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float64, provider.TokenUsage, error) {
	e.queryCalls++
	return e.queryVec, e.usage, nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, provider.TokenUsage, error) {
	e.batchCalls++
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = e.batchVec
	}
	return vectors, e.usage, nil
}

// scriptedCompleter answers by role, keyed off the system prompt, so one
// stub serves the rewriter, the generator and the judge.
type scriptedCompleter struct {
	rewrite string
	answer  string
	verdict string
	calls   int
}

func (c *scriptedCompleter) Complete(_ context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	c.calls++
	usage := provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}

	switch {
	case strings.Contains(req.SystemPrompt, "search query optimizer"):
		return &provider.Completion{Content: c.rewrite, Usage: usage}, nil
	case strings.Contains(req.SystemPrompt, "answer quality judge"):
		return &provider.Completion{Content: c.verdict, Usage: usage}, nil
	default:
		return &provider.Completion{Content: c.answer, Usage: usage}, nil
	}
}

func newTestPipeline(t *testing.T, embedder *stubEmbedder, completer *scriptedCompleter, limits Limits) (*Pipeline, *Session) {
	t.Helper()

	store, err := diagnostic.NewStore(filepath.Join(t.TempDir(), "diag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rates := budget.Rates{
		EmbeddingPerToken:        0.02 / 1e6,
		CompletionInputPerToken:  0.15 / 1e6,
		CompletionOutputPerToken: 0.60 / 1e6,
	}

	p := New(
		embedder,
		completer,
		rewrite.New(completer, nil),
		classify.NewJudge(completer),
		store,
		rates,
		classify.DefaultThresholds(),
		limits,
	)

	return p, newSession(0.10)
}

func defaultLimits() Limits {
	return Limits{MaxSources: 5, MaxFileSizeMB: 10, MaxChunks: 500, TopK: 3, EmbedBatchSize: 100}
}

func defaultCompleter() *scriptedCompleter {
	return &scriptedCompleter{
		rewrite: "rewritten query",
		answer:  "According to Source 1, the fox jumps over the dog.",
		verdict: `{"status": "confident", "reason": "direct answer"}`,
	}
}

func TestIngestIndexesChunks(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}, usage: provider.TokenUsage{TotalTokens: 100}}
	p, s := newTestPipeline(t, embedder, defaultCompleter(), defaultLimits())

	result, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "fox.txt", Data: []byte(docText)},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksIndexed)
	assert.Equal(t, 100, result.Tokens)
	assert.Greater(t, result.Cost, 0.0)
	assert.Equal(t, 1, s.Index().Len())
	assert.Equal(t, 1, s.SourceCount())
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "fox.txt", result.Documents[0].Source)
	assert.Equal(t, 1, result.Documents[0].Chunks)
}

func TestIngestContinuesPastFailedDocument(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}, usage: provider.TokenUsage{TotalTokens: 100}}
	p, s := newTestPipeline(t, embedder, defaultCompleter(), defaultLimits())

	result, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "image.png", Data: []byte("not a document")},
		{Name: "fox.txt", Data: []byte(docText)},
	}, nil)

	require.NoError(t, err)
	require.Len(t, result.Documents, 2)
	assert.NotEmpty(t, result.Documents[0].Error)
	assert.Equal(t, 0, result.Documents[0].Chunks)
	assert.Empty(t, result.Documents[1].Error)
	assert.Equal(t, 1, result.Documents[1].Chunks)
	assert.Equal(t, 1, result.ChunksIndexed)
}

func TestIngestNoChunks(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}}
	p, s := newTestPipeline(t, embedder, defaultCompleter(), defaultLimits())

	// Long enough to pass extraction, too short to close a passage.
	shortDoc := "This document has one short sentence that never becomes a chunk."

	_, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "short.txt", Data: []byte(shortDoc)},
	}, nil)

	assert.ErrorIs(t, err, ErrNoChunks)
	assert.Zero(t, embedder.batchCalls)
}

func TestIngestEnforcesSourceLimit(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}}
	limits := defaultLimits()
	limits.MaxSources = 1
	p, s := newTestPipeline(t, embedder, defaultCompleter(), limits)

	_, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "a.txt", Data: []byte(docText)},
		{Name: "b.txt", Data: []byte(docText)},
	}, nil)

	assert.ErrorIs(t, err, ErrTooManySources)
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}}
	limits := defaultLimits()
	limits.MaxFileSizeMB = 1
	p, s := newTestPipeline(t, embedder, defaultCompleter(), limits)

	huge := make([]byte, 2*1024*1024)

	result, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "huge.txt", Data: huge},
	}, nil)

	assert.ErrorIs(t, err, ErrNoChunks)
	require.Len(t, result.Documents, 1)
	assert.Contains(t, result.Documents[0].Error, "exceeds maximum size")
}

func TestIngestStopsBetweenBatchesOnBudget(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}, usage: provider.TokenUsage{TotalTokens: 10_000_000}}
	limits := defaultLimits()
	limits.EmbedBatchSize = 1
	p, s := newTestPipeline(t, embedder, defaultCompleter(), limits)

	// Three passages, one per batch. The first batch alone costs 0.20 and
	// blows the 0.10 cap, so the second batch must never be sent.
	text := docText + "\n" + docText + "\n" + docText

	result, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "fox.txt", Data: []byte(text)},
	}, nil)

	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.Equal(t, 1, embedder.batchCalls)
	assert.Equal(t, 1, s.Index().Len())
	assert.Greater(t, result.Cost, 0.0)
	assert.True(t, s.Ledger().Exceeded())
}

func TestIngestReportsProgress(t *testing.T) {
	embedder := &stubEmbedder{batchVec: []float64{1, 0}, usage: provider.TokenUsage{TotalTokens: 10}}
	limits := defaultLimits()
	limits.EmbedBatchSize = 1
	p, s := newTestPipeline(t, embedder, defaultCompleter(), limits)

	text := docText + "\n" + docText

	var updates [][2]int
	_, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "fox.txt", Data: []byte(text)},
	}, func(done, total int) {
		updates = append(updates, [2]int{done, total})
	})

	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, updates)
}

func TestAskConfidentFlow(t *testing.T) {
	embedder := &stubEmbedder{
		queryVec: []float64{1, 0},
		batchVec: []float64{1, 0},
		usage:    provider.TokenUsage{TotalTokens: 100},
	}
	completer := defaultCompleter()
	p, s := newTestPipeline(t, embedder, completer, defaultLimits())

	_, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "fox.txt", Data: []byte(docText)},
	}, nil)
	require.NoError(t, err)

	answer, err := p.Ask(context.Background(), s, "what does the fox do?")
	require.NoError(t, err)

	assert.Equal(t, "what does the fox do?", answer.Question)
	assert.Equal(t, "rewritten query", answer.RewrittenQuery)
	assert.Equal(t, completer.answer, answer.Text)
	assert.Equal(t, classify.RetrievalConfident, answer.Retrieval.Status)
	assert.Equal(t, classify.GenerationConfident, answer.Generation.Status)
	assert.Equal(t, classify.FailureNone, answer.Failure)
	assert.InDelta(t, 1.0, answer.Retrieval.TopScore, 1e-9)
	require.Len(t, answer.Sources, 1)
	assert.Greater(t, answer.Cost, 0.0)
	// Rewrite, generation, judge.
	assert.Equal(t, 3, completer.calls)
}

func TestAskRefusesOnFailedRetrieval(t *testing.T) {
	embedder := &stubEmbedder{
		queryVec: []float64{0, 1},
		batchVec: []float64{1, 0},
		usage:    provider.TokenUsage{TotalTokens: 100},
	}
	completer := defaultCompleter()
	completer.verdict = `{"status": "refused", "reason": "canned refusal"}`
	p, s := newTestPipeline(t, embedder, completer, defaultLimits())

	_, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "fox.txt", Data: []byte(docText)},
	}, nil)
	require.NoError(t, err)

	answer, err := p.Ask(context.Background(), s, "unrelated question")
	require.NoError(t, err)

	assert.Equal(t, classify.RetrievalFailed, answer.Retrieval.Status)
	assert.Equal(t, refusalAnswer, answer.Text)
	assert.Equal(t, classify.FailureRetrieval, answer.Failure)
	// Rewrite and judge only; no generation call for a refusal.
	assert.Equal(t, 2, completer.calls)
}

func TestAskEmptyIndex(t *testing.T) {
	embedder := &stubEmbedder{queryVec: []float64{1, 0}}
	completer := defaultCompleter()
	p, s := newTestPipeline(t, embedder, completer, defaultLimits())

	_, err := p.Ask(context.Background(), s, "anything")

	assert.ErrorIs(t, err, ErrEmptyIndex)
	assert.Zero(t, completer.calls)
	assert.Zero(t, embedder.queryCalls)
}

func TestAskRefusesWhenBudgetExceeded(t *testing.T) {
	embedder := &stubEmbedder{
		queryVec: []float64{1, 0},
		batchVec: []float64{1, 0},
		usage:    provider.TokenUsage{TotalTokens: 100},
	}
	completer := defaultCompleter()
	p, s := newTestPipeline(t, embedder, completer, defaultLimits())

	_, err := p.Ingest(context.Background(), s, []IngestInput{
		{Name: "fox.txt", Data: []byte(docText)},
	}, nil)
	require.NoError(t, err)

	s.Ledger().Charge(1.0)
	callsBefore := completer.calls
	queryCallsBefore := embedder.queryCalls

	_, err = p.Ask(context.Background(), s, "anything")

	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.Equal(t, callsBefore, completer.calls)
	assert.Equal(t, queryCallsBefore, embedder.queryCalls)
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(0.10)

	s := m.Create()
	assert.NotEmpty(t, s.ID)
	assert.InDelta(t, 0.10, s.Ledger().Cap(), 1e-12)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Delete(s.ID))

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(s.ID), ErrSessionNotFound)
}
