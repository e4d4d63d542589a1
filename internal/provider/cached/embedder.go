// Package cached decorates an embedding provider with a Redis cache for
// query embeddings.
package cached

import (
	"context"

	"go.uber.org/zap"

	"github.com/supai/backend/internal/cache/redis"
	"github.com/supai/backend/internal/metrics"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/logger"
	"github.com/supai/backend/pkg/utils"
)

// Embedder caches EmbedQuery results keyed by text hash. Document batches
// pass through uncached: passages are session-scoped and rarely repeat,
// while the same question text shows up across sessions.
type Embedder struct {
	inner provider.EmbeddingProvider
	cache *redis.Client
}

func NewEmbedder(inner provider.EmbeddingProvider, cache *redis.Client) *Embedder {
	return &Embedder{inner: inner, cache: cache}
}

// EmbedQuery returns the cached vector with zero usage on a hit, so the
// caller charges nothing for it.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float64, provider.TokenUsage, error) {
	textHash := utils.HashString(text)

	if vector, ok, err := e.cache.GetEmbedding(ctx, textHash); err == nil && ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return vector, provider.TokenUsage{}, nil
	} else if err != nil {
		logger.Debug("Embedding cache lookup failed", zap.Error(err))
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	vector, usage, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, usage, err
	}

	if err := e.cache.SetEmbedding(ctx, textHash, vector); err != nil {
		logger.Debug("Embedding cache store failed", zap.Error(err))
	}

	return vector, usage, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, provider.TokenUsage, error) {
	return e.inner.EmbedBatch(ctx, texts)
}
