package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Provider 抽象不同向量模型/服务的统一接口。
type Provider interface {
	// Initialize 幂等地加载底层模型，重复调用为 no-op
	Initialize(ctx context.Context) error
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 返回与输入等长且顺序一致的向量列表
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	GetModel() string
	GetProviderName() string
}

// GenerationError 向量生成失败，携带底层模型的原始错误。
type GenerationError struct {
	Provider string
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("向量生成失败(%s): %v", e.Provider, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// FormatVector 将向量转换为 pgvector 字面量格式 '[v1,v2,...]'，
// 生成的字符串直接用于批量插入语句
func FormatVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
