package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backend/internal/logger"
	"backend/internal/metrics"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"
)

// embedBatchSize 单次提交给模型的文本数量上限，
// 过大的批次会显著增加 ONNX 推理的内存峰值
const embedBatchSize = 100

// textEncoder 本地向量模型的最小接口，测试中可注入确定性实现
type textEncoder interface {
	EncodeBatch(texts []string) ([][]float32, error)
	Close() error
}

// fastembedEncoder 基于 fastembed-go 的 ONNX 推理实现
type fastembedEncoder struct {
	model *fastembed.FlagEmbedding
}

func (e *fastembedEncoder) EncodeBatch(texts []string) ([][]float32, error) {
	return e.model.Embed(texts, len(texts))
}

func (e *fastembedEncoder) Close() error {
	if e.model != nil {
		e.model.Destroy()
	}
	return nil
}

// LocalProvider 本地向量化提供者（all-MiniLM-L6-v2，384 维）
// 模型延迟加载：首次调用 Initialize/Embed 时才下载并载入 ONNX 模型
type LocalProvider struct {
	model     string
	cacheDir  string
	dimension int

	mu      sync.Mutex
	encoder textEncoder

	// newEncoder 构造底层模型，测试中替换为桩实现
	newEncoder func() (textEncoder, error)
}

// NewLocalProvider 创建本地向量化提供者，不会立即加载模型
func NewLocalProvider(model, cacheDir string, dimension int) *LocalProvider {
	if model == "" {
		model = string(fastembed.AllMiniLML6V2)
	}
	if cacheDir == "" {
		cacheDir = ".fastembed"
	}
	if dimension <= 0 {
		dimension = 384
	}

	p := &LocalProvider{
		model:     model,
		cacheDir:  cacheDir,
		dimension: dimension,
	}
	p.newEncoder = func() (textEncoder, error) {
		m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
			Model:     fastembed.EmbeddingModel(p.model),
			CacheDir:  p.cacheDir,
			MaxLength: 512,
		})
		if err != nil {
			return nil, err
		}
		return &fastembedEncoder{model: m}, nil
	}
	return p
}

// Initialize 加载模型，幂等且并发安全；失败后允许重试
func (p *LocalProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder != nil {
		return nil
	}

	logger.Info("加载本地向量模型",
		zap.String("model", p.model),
		zap.String("cache_dir", p.cacheDir),
	)

	start := time.Now()
	enc, err := p.newEncoder()
	if err != nil {
		return fmt.Errorf("本地向量模型加载失败: %w", err)
	}

	p.encoder = enc
	logger.Info("本地向量模型加载完成",
		zap.String("model", p.model),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Embed 生成单条文本的向量
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vecs, err := p.encoder.EncodeBatch([]string{text})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "single", "error").Inc()
		return nil, &GenerationError{Provider: p.GetProviderName(), Cause: err}
	}
	if len(vecs) != 1 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "single", "error").Inc()
		return nil, &GenerationError{
			Provider: p.GetProviderName(),
			Cause:    fmt.Errorf("模型返回了 %d 个向量，期望 1 个", len(vecs)),
		}
	}

	p.checkDimension(vecs[0])
	metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "single", "success").Inc()
	metrics.EmbeddingDuration.WithLabelValues(p.GetProviderName(), "single").Observe(time.Since(start).Seconds())
	return vecs[0], nil
}

// EmbedBatch 批量生成向量，返回结果与输入等长、顺序一致。
//
// 降级策略分两级：
//   - 某个批次返回数量与输入不符：仅该批次降级为逐条生成；
//   - 某个批次调用直接报错：认为模型批量路径不可用，
//     整个请求对全部输入降级为逐条生成。
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		t0 := time.Now()
		vecs, err := p.encoder.EncodeBatch(chunk)
		if err != nil {
			// 批量调用失败：全部输入降级为逐条生成
			logger.Warn("批量向量化失败，降级为逐条生成",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "batch", "error").Inc()
			return p.embedEach(ctx, texts)
		}

		if len(vecs) != len(chunk) {
			// 返回数量不符：仅该批次逐条重新生成
			logger.Warn("批量向量化返回数量不符，该批次降级为逐条生成",
				zap.Int("chunk_start", start),
				zap.Int("expected", len(chunk)),
				zap.Int("got", len(vecs)),
			)
			vecs, err = p.embedEach(ctx, chunk)
			if err != nil {
				return nil, err
			}
		} else {
			for _, v := range vecs {
				p.checkDimension(v)
			}
			metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "batch", "success").Inc()
			metrics.EmbeddingDuration.WithLabelValues(p.GetProviderName(), "batch").Observe(time.Since(t0).Seconds())
		}

		results = append(results, vecs...)
	}

	return results, nil
}

// embedEach 逐条生成向量，任何一条失败都终止并返回 GenerationError
func (p *LocalProvider) embedEach(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vecs, err := p.encoder.EncodeBatch([]string{text})
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "fallback", "error").Inc()
			return nil, &GenerationError{
				Provider: p.GetProviderName(),
				Cause:    fmt.Errorf("第 %d 条文本向量化失败: %w", i+1, err),
			}
		}
		if len(vecs) != 1 {
			metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "fallback", "error").Inc()
			return nil, &GenerationError{
				Provider: p.GetProviderName(),
				Cause:    fmt.Errorf("第 %d 条文本返回了 %d 个向量", i+1, len(vecs)),
			}
		}

		p.checkDimension(vecs[0])
		results = append(results, vecs[0])
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(p.GetProviderName(), "fallback", "success").Inc()
	return results, nil
}

// checkDimension 维度偏差只告警不中断，存储层按实际维度写入
func (p *LocalProvider) checkDimension(vec []float32) {
	if len(vec) != p.dimension {
		logger.Warn("向量维度与配置不符",
			zap.Int("expected", p.dimension),
			zap.Int("actual", len(vec)),
			zap.String("model", p.model),
		)
	}
}

// Dimension 返回配置的向量维度
func (p *LocalProvider) Dimension() int {
	return p.dimension
}

// GetModel 返回模型名称
func (p *LocalProvider) GetModel() string {
	return p.model
}

// GetProviderName 返回提供者名称
func (p *LocalProvider) GetProviderName() string {
	return "local"
}

// Close 释放底层模型资源
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.encoder != nil {
		err := p.encoder.Close()
		p.encoder = nil
		return err
	}
	return nil
}
