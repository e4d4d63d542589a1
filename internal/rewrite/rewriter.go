// Package rewrite normalizes raw user questions into search-optimized
// queries before retrieval.
package rewrite

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/supai/backend/internal/cache/redis"
	"github.com/supai/backend/internal/metrics"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/logger"
	"github.com/supai/backend/pkg/utils"
)

const systemPrompt = `You are a search query optimizer. Your job is to:
1. Fix any spelling mistakes - if a word doesn't make sense, assume it's a typo and correct it to the closest real word
2. For unclear proper nouns or brand names that look misspelled, make your best guess at the correct spelling
3. Rephrase the question to be clearer for semantic search

Return ONLY the rewritten query. Nothing else. No explanation.`

// Rewriter rewrites questions via the completion capability, with an
// optional Redis cache in front. A rewriter that fails falls back to the
// original question; it never blocks the pipeline.
type Rewriter struct {
	completer provider.CompletionProvider
	cache     *redis.Client
}

func New(completer provider.CompletionProvider, cache *redis.Client) *Rewriter {
	return &Rewriter{completer: completer, cache: cache}
}

// Rewrite returns the normalized question and the token usage of the
// rewrite call. Usage is zero on a cache hit or fallback, so callers can
// charge the ledger unconditionally.
func (r *Rewriter) Rewrite(ctx context.Context, question string) (string, provider.TokenUsage) {
	questionHash := utils.HashString(question)

	if r.cache != nil {
		if cached, ok, err := r.cache.GetRewrite(ctx, questionHash); err == nil && ok {
			metrics.CacheHits.WithLabelValues("rewrite").Inc()
			return cached, provider.TokenUsage{}
		} else if err != nil {
			logger.Debug("Rewrite cache lookup failed", zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues("rewrite").Inc()
	}

	resp, err := r.completer.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Rewrite this search query: %s", question),
		Temperature:  0,
		MaxTokens:    100,
	})
	if err != nil {
		logger.Warn("Query rewrite failed, using original question", zap.Error(err))
		return question, provider.TokenUsage{}
	}

	rewritten := strings.TrimSpace(resp.Content)
	if rewritten == "" {
		logger.Warn("Query rewrite returned empty text, using original question")
		return question, resp.Usage
	}

	if r.cache != nil {
		if err := r.cache.SetRewrite(ctx, questionHash, rewritten); err != nil {
			logger.Debug("Rewrite cache store failed", zap.Error(err))
		}
	}

	logger.Debug("Question rewritten",
		zap.String("original", question),
		zap.String("rewritten", rewritten),
	)

	return rewritten, resp.Usage
}
