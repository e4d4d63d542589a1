// Package openai implements the embedding and completion capabilities on
// the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/pkg/circuitbreaker"
	"github.com/supai/backend/pkg/logger"
	"github.com/supai/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, model, embeddingModel string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	cb := circuitbreaker.New("openai", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("OpenAI client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		timeout:        time.Duration(timeoutSec) * time.Second,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *provider.Completion

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: req.Temperature,
					MaxTokens:   req.MaxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &provider.Completion{
				Content: resp.Choices[0].Message.Content,
				Usage: provider.TokenUsage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, provider.TokenUsage, error) {
	vectors, usage, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, provider.TokenUsage{}, err
	}
	return vectors[0], usage, nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, provider.TokenUsage, error) {
	if len(texts) == 0 {
		return nil, provider.TokenUsage{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vectors [][]float64
	var usage provider.TokenUsage

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: texts,
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}

			if len(resp.Data) != len(texts) {
				return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts))
			}

			vectors = make([][]float64, 0, len(resp.Data))
			for _, data := range resp.Data {
				vector := make([]float64, len(data.Embedding))
				for i, v := range data.Embedding {
					vector[i] = float64(v)
				}
				vectors = append(vectors, vector)
			}

			usage = provider.TokenUsage{
				PromptTokens: resp.Usage.PromptTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}

			return nil
		})
	})

	if err != nil {
		return nil, provider.TokenUsage{}, err
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(vectors)))

	return vectors, usage, nil
}
