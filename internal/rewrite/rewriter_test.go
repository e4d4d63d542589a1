package rewrite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/supai/backend/internal/provider"
)

type stubCompleter struct {
	content string
	err     error
	calls   int
}

func (s *stubCompleter) Complete(_ context.Context, _ provider.CompletionRequest) (*provider.Completion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Completion{
		Content: s.content,
		Usage:   provider.TokenUsage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
	}, nil
}

func TestRewriteReturnsRewrittenQuery(t *testing.T) {
	r := New(&stubCompleter{content: "capital city of France"}, nil)

	got, usage := r.Rewrite(context.Background(), "wat is the capitol of Frnace")

	assert.Equal(t, "capital city of France", got)
	assert.Equal(t, 28, usage.TotalTokens)
}

func TestRewriteTrimsWhitespace(t *testing.T) {
	r := New(&stubCompleter{content: "  cleaned query \n"}, nil)

	got, _ := r.Rewrite(context.Background(), "question")

	assert.Equal(t, "cleaned query", got)
}

func TestRewriteFallsBackOnProviderError(t *testing.T) {
	r := New(&stubCompleter{err: errors.New("timeout")}, nil)

	got, usage := r.Rewrite(context.Background(), "original question")

	assert.Equal(t, "original question", got)
	assert.Zero(t, usage.TotalTokens)
}

func TestRewriteFallsBackOnEmptyOutput(t *testing.T) {
	r := New(&stubCompleter{content: "   "}, nil)

	got, usage := r.Rewrite(context.Background(), "original question")

	assert.Equal(t, "original question", got)
	// The call still happened, so its usage is still reported for billing.
	assert.Equal(t, 28, usage.TotalTokens)
}
