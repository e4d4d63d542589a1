// Package provider defines the capability interfaces the question-answering
// core consumes. Implementations live in subpackages; tests substitute stubs.
package provider

import "context"

// TokenUsage is the provider-reported token consumption for a single call.
// Cost accounting is always derived from these numbers, never estimated
// locally.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type Completion struct {
	Content string
	Usage   TokenUsage
}

// CompletionProvider is a blocking text-generation capability.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// EmbeddingProvider converts text into fixed-length vectors. EmbedBatch
// issues a single provider call for all texts; callers split large inputs
// into batches themselves so they can report progress and check
// cancellation between calls.
type EmbeddingProvider interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, TokenUsage, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, TokenUsage, error)
}
