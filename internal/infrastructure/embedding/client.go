// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"needle-api/internal/config"
)

var tracer = otel.Tracer("embedding")

// Client 批量向量化客户端，封装底层 Embedder 的分批与维度校验
type Client struct {
	embedder  embedding.Embedder
	batchSize int
	dim       int
}

func NewClient(embedder embedding.Embedder, cfg *config.EmbeddingConfig) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Client{
		embedder:  embedder,
		batchSize: batchSize,
		dim:       cfg.Dimension,
	}
}

// Dimension 向量维度
func (c *Client) Dimension() int {
	return c.dim
}

// Embed 批量向量化，内部按 batch_size 分批调用
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := tracer.Start(ctx, "embedding.Embed")
	span.SetAttributes(attribute.Int("texts.count", len(texts)))
	defer span.End()

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embedder.EmbedStrings(ctx, texts[i:end])
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("embedding batch failed: %w", err)
		}
		if len(vectors) != end-i {
			return nil, fmt.Errorf("embedding returned %d vectors for %d texts", len(vectors), end-i)
		}

		for _, v := range vectors {
			if c.dim > 0 && len(v) != c.dim {
				return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", c.dim, len(v))
			}
			vec := make([]float32, len(v))
			for j, f := range v {
				vec[j] = float32(f)
			}
			all = append(all, vec)
		}
	}

	return all, nil
}

// EmbedOne 单条向量化
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding returned no vector")
	}
	return vectors[0], nil
}
