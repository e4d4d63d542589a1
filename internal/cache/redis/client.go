// Package redis caches query rewrites and embeddings so repeated
// questions within a deployment do not pay the provider twice. The cache
// is strictly optional: every caller tolerates a nil client.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/supai/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetRewrite(ctx context.Context, questionHash, rewritten string) error {
	err := c.client.Set(ctx, fmt.Sprintf("rewrite:%s", questionHash), rewritten, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set rewrite cache: %w", err)
	}

	logger.Debug("Rewrite cached", zap.String("question_hash", questionHash))
	return nil
}

func (c *Client) GetRewrite(ctx context.Context, questionHash string) (string, bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("rewrite:%s", questionHash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get rewrite cache: %w", err)
	}

	logger.Debug("Rewrite cache hit", zap.String("question_hash", questionHash))
	return val, true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float64) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("embedding:%s", textHash), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float64, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", textHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float64
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	logger.Debug("Embedding cache hit", zap.String("text_hash", textHash))
	return embedding, true, nil
}
