// Package pipeline orchestrates the per-question flow: normalize,
// retrieve, classify, answer, judge, combine, log. It owns no global
// state; everything mutable lives in the Session passed to each call.
package pipeline

import (
	"errors"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/diagnostic"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/internal/rewrite"
)

var (
	// ErrNoChunks means every surviving document chunked to nothing.
	ErrNoChunks = errors.New("could not extract enough text to create chunks")

	// ErrEmptyIndex means a question arrived before any document was indexed.
	ErrEmptyIndex = errors.New("no documents have been indexed in this session")

	ErrTooManySources = errors.New("maximum sources per session reached")
	ErrFileTooLarge   = errors.New("file exceeds maximum size")
)

type Limits struct {
	MaxSources     int
	MaxFileSizeMB  int
	MaxChunks      int
	TopK           int
	EmbedBatchSize int
}

type Pipeline struct {
	embedder   provider.EmbeddingProvider
	completer  provider.CompletionProvider
	rewriter   *rewrite.Rewriter
	judge      *classify.Judge
	store      *diagnostic.Store
	rates      budget.Rates
	thresholds classify.Thresholds
	limits     Limits
}

func New(
	embedder provider.EmbeddingProvider,
	completer provider.CompletionProvider,
	rewriter *rewrite.Rewriter,
	judge *classify.Judge,
	store *diagnostic.Store,
	rates budget.Rates,
	thresholds classify.Thresholds,
	limits Limits,
) *Pipeline {
	if limits.TopK <= 0 {
		limits.TopK = 3
	}
	if limits.EmbedBatchSize <= 0 {
		limits.EmbedBatchSize = 100
	}

	return &Pipeline{
		embedder:   embedder,
		completer:  completer,
		rewriter:   rewriter,
		judge:      judge,
		store:      store,
		rates:      rates,
		thresholds: thresholds,
		limits:     limits,
	}
}
