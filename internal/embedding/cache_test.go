package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingProvider 记录底层调用次数的假提供者
type countingProvider struct {
	embedCalls int
	batchCalls int
	batchTexts []string
}

func (p *countingProvider) Initialize(ctx context.Context) error { return nil }

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.embedCalls++
	return []float32{float32(len(text))}, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.batchCalls++
	p.batchTexts = append([]string(nil), texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (p *countingProvider) Dimension() int          { return 1 }
func (p *countingProvider) GetModel() string        { return "fake-model" }
func (p *countingProvider) GetProviderName() string { return "fake" }

func TestCacheLocalOnly(t *testing.T) {
	// Redis 为 nil 时退化为纯内存缓存
	cache := NewCache(nil, "test:", time.Hour)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "你好", "m1")
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, "你好", "m1", []float32{1, 2, 3}))

	vec, ok := cache.Get(ctx, "你好", "m1")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, vec)

	// 不同模型的同一文本是不同的键
	_, ok = cache.Get(ctx, "你好", "m2")
	require.False(t, ok)
}

func TestCacheLocalCountIgnoresOverwrites(t *testing.T) {
	cache := NewCache(nil, "test:", time.Hour)
	ctx := context.Background()

	// 同一键重复写入只算一条，计数漂移会导致提前触发清理
	require.NoError(t, cache.Set(ctx, "同一文本", "m1", []float32{1}))
	require.NoError(t, cache.Set(ctx, "同一文本", "m1", []float32{2}))
	require.NoError(t, cache.Set(ctx, "另一文本", "m1", []float32{3}))

	require.EqualValues(t, 2, cache.localCount)

	// 覆盖后读到的是新值
	vec, ok := cache.Get(ctx, "同一文本", "m1")
	require.True(t, ok)
	require.Equal(t, []float32{2}, vec)
}

func TestCachedProviderEmbedHitsCache(t *testing.T) {
	inner := &countingProvider{}
	p := NewCachedProvider(inner, NewCache(nil, "test:", time.Hour))
	ctx := context.Background()

	vec1, err := p.Embed(ctx, "重复文本")
	require.NoError(t, err)

	vec2, err := p.Embed(ctx, "重复文本")
	require.NoError(t, err)

	require.Equal(t, vec1, vec2)
	require.Equal(t, 1, inner.embedCalls)
}

func TestCachedProviderBatchOnlyComputesMisses(t *testing.T) {
	inner := &countingProvider{}
	p := NewCachedProvider(inner, NewCache(nil, "test:", time.Hour))
	ctx := context.Background()

	// 预热两条
	_, err := p.EmbedBatch(ctx, []string{"甲", "乙"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.batchCalls)

	// 再次请求四条，只有两条未命中
	got, err := p.EmbedBatch(ctx, []string{"甲", "丙丙", "乙", "丁丁丁"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, 2, inner.batchCalls)
	require.Equal(t, []string{"丙丙", "丁丁丁"}, inner.batchTexts)

	// 结果顺序与输入一致
	require.Equal(t, float32(len("甲")), got[0][0])
	require.Equal(t, float32(len("丙丙")), got[1][0])
	require.Equal(t, float32(len("乙")), got[2][0])
	require.Equal(t, float32(len("丁丁丁")), got[3][0])
}
