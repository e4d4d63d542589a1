package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/chunker"
	"github.com/supai/backend/internal/extract"
	"github.com/supai/backend/internal/metrics"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/logger"
)

// IngestInput is one document to load: either a URL or a named file.
type IngestInput struct {
	URL  string
	Name string
	Data []byte
}

func (in IngestInput) source() string {
	if in.URL != "" {
		return in.URL
	}
	return in.Name
}

// DocumentResult records the per-document outcome of an ingestion.
// Extraction failures are local: the rest of the batch proceeds.
type DocumentResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

type IngestResult struct {
	Documents     []DocumentResult `json:"documents"`
	ChunksIndexed int              `json:"chunks_indexed"`
	Tokens        int              `json:"tokens"`
	Cost          float64          `json:"cost"`
}

// ProgressFunc is called between embedding batches with the number of
// passages embedded so far and the total. Batches are the cooperative
// cancellation point; ctx is checked between them, never mid-batch.
type ProgressFunc func(done, total int)

// Ingest extracts, chunks, embeds and indexes a batch of documents into
// the session. It fails fast on budget exhaustion and returns ErrNoChunks
// when no document yields a single passage.
func (p *Pipeline) Ingest(ctx context.Context, s *Session, inputs []IngestInput, progress ProgressFunc) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sources)+len(inputs) > p.limits.MaxSources {
		return nil, fmt.Errorf("%w: limit %d, have %d", ErrTooManySources, p.limits.MaxSources, len(s.sources))
	}

	if s.ledger.Exceeded() {
		metrics.BudgetRefusals.Inc()
		return nil, budget.ErrBudgetExceeded
	}

	maxFileBytes := p.limits.MaxFileSizeMB * 1024 * 1024

	result := &IngestResult{}
	var passages []chunker.Passage

	for _, input := range inputs {
		docResult := DocumentResult{Source: input.source()}

		doc, err := p.extractOne(ctx, input, maxFileBytes)
		if err != nil {
			logger.Warn("Document extraction failed",
				zap.String("source", input.source()),
				zap.Error(err),
			)
			docResult.Error = err.Error()
			metrics.DocumentsIngested.WithLabelValues("failed").Inc()
			result.Documents = append(result.Documents, docResult)
			continue
		}

		chunks := chunker.Chunk(doc.Text, doc.Source)
		docResult.Chunks = len(chunks)
		passages = append(passages, chunks...)
		metrics.DocumentsIngested.WithLabelValues("ok").Inc()
		result.Documents = append(result.Documents, docResult)

		logger.Info("Document chunked",
			zap.String("source", doc.Source),
			zap.Int("chunks", len(chunks)),
		)
	}

	if len(passages) == 0 {
		return result, ErrNoChunks
	}

	if room := p.limits.MaxChunks - s.index.Len(); len(passages) > room {
		logger.Warn("Chunk limit reached, trimming",
			zap.Int("limit", p.limits.MaxChunks),
			zap.Int("dropped", len(passages)-room),
		)
		if room <= 0 {
			return result, fmt.Errorf("chunk limit of %d reached", p.limits.MaxChunks)
		}
		passages = passages[:room]
	}

	cost, usage, err := p.embedAndIndex(ctx, s, passages, progress)
	result.Cost = cost
	result.Tokens = usage.TotalTokens
	if err != nil {
		return result, err
	}

	for _, passage := range passages {
		s.sources[passage.Source] = struct{}{}
	}
	result.ChunksIndexed = len(passages)

	logger.Info("Ingestion complete",
		zap.String("session_id", s.ID),
		zap.Int("chunks", len(passages)),
		zap.Float64("cost", cost),
	)

	return result, nil
}

func (p *Pipeline) extractOne(ctx context.Context, input IngestInput, maxFileBytes int) (*extract.Document, error) {
	if input.URL != "" {
		return extract.FromURL(ctx, input.URL)
	}
	if len(input.Data) > maxFileBytes {
		return nil, fmt.Errorf("%s: %w (max %d MB)", input.Name, ErrFileTooLarge, p.limits.MaxFileSizeMB)
	}
	return extract.FromFile(input.Name, input.Data)
}

// embedAndIndex embeds passages in sequential batches and appends them to
// the session index. The budget is checked before every batch so a cap
// hit stops the next provider call, not the current one.
func (p *Pipeline) embedAndIndex(ctx context.Context, s *Session, passages []chunker.Passage, progress ProgressFunc) (float64, provider.TokenUsage, error) {
	var totalCost float64
	var totalUsage provider.TokenUsage

	for start := 0; start < len(passages); start += p.limits.EmbedBatchSize {
		if err := ctx.Err(); err != nil {
			return totalCost, totalUsage, err
		}

		if s.ledger.Exceeded() {
			metrics.BudgetRefusals.Inc()
			return totalCost, totalUsage, budget.ErrBudgetExceeded
		}

		end := start + p.limits.EmbedBatchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[start:end]

		texts := make([]string, len(batch))
		for i, passage := range batch {
			texts[i] = passage.Text
		}

		vectors, usage, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return totalCost, totalUsage, fmt.Errorf("failed to embed batch: %w", err)
		}

		cost := p.rates.EmbeddingCost(usage)
		s.ledger.Charge(cost)
		totalCost += cost
		totalUsage = totalUsage.Add(usage)
		metrics.TokensUsed.WithLabelValues("embedding").Add(float64(usage.TotalTokens))
		metrics.CostUSD.Add(cost)

		for i, passage := range batch {
			s.index.Add(passage, vectors[i])
		}
		metrics.ChunksIndexed.Add(float64(len(batch)))

		if progress != nil {
			progress(end, len(passages))
		}
	}

	return totalCost, totalUsage, nil
}
