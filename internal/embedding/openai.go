package embedding

import (
	"context"
	"fmt"

	"backend/internal/logger"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIProvider OpenAI向量化服务提供者
type OpenAIProvider struct {
	client *openai.Client
	model  string // 默认使用 text-embedding-3-small
}

// NewOpenAIProvider 创建OpenAI向量化提供者
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	client := openai.NewClient(apiKey)

	// 如果未指定模型,使用默认模型
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIProvider{
		client: client,
		model:  model,
	}
}

// Initialize 远端服务无需加载模型
func (p *OpenAIProvider) Initialize(ctx context.Context) error {
	return nil
}

// Embed 将文本转换为向量
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("文本不能为空")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})

	if err != nil {
		return nil, &GenerationError{Provider: p.GetProviderName(), Cause: err}
	}

	if len(resp.Data) == 0 {
		return nil, &GenerationError{
			Provider: p.GetProviderName(),
			Cause:    fmt.Errorf("API返回空向量"),
		}
	}

	return resp.Data[0].Embedding, nil
}

// EmbedBatch 批量向量化文本
// 单次请求失败时降级为逐条调用，与本地提供者保持相同语义
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		embeddings, err := p.embedBatchInternal(ctx, batch)
		if err != nil {
			logger.Warn("OpenAI 批量向量化失败，降级为逐条调用",
				zap.Int("chunk_start", i),
				zap.Error(err),
			)
			return p.embedEach(ctx, texts)
		}

		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchInternal 内部批量向量化方法
func (p *OpenAIProvider) embedBatchInternal(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})

	if err != nil {
		return nil, fmt.Errorf("调用OpenAI Embeddings API失败: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI API返回向量数量不匹配: 期望%d, 实际%d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}

	return embeddings, nil
}

// embedEach 逐条向量化，任何一条失败都终止
func (p *OpenAIProvider) embedEach(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, &GenerationError{
				Provider: p.GetProviderName(),
				Cause:    fmt.Errorf("第 %d 条文本向量化失败: %w", i+1, err),
			}
		}
		results = append(results, vec)
	}
	return results, nil
}

// Dimension 获取向量维度
func (p *OpenAIProvider) Dimension() int {
	// text-embedding-3-small: 1536维
	// text-embedding-3-large: 3072维
	// text-embedding-ada-002: 1536维
	switch p.model {
	case string(openai.LargeEmbedding3):
		return 3072
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	default:
		return 1536
	}
}

// GetModel 获取当前使用的模型
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// GetProviderName 获取提供商名称
func (p *OpenAIProvider) GetProviderName() string {
	return "openai"
}
