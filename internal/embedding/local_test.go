package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubEncoder 确定性编码器：向量第一维编码文本长度，便于断言顺序
type stubEncoder struct {
	dim        int
	batchCalls int
	// failBatchAt 当批量输入长度超过 1 且这是第 N 次批量调用时返回错误
	failBatchAt int
	// truncateAt 当这是第 N 次批量调用时少返回一个向量
	truncateAt int
	// failText 对该文本的任何调用都返回错误
	failText string
}

func (s *stubEncoder) EncodeBatch(texts []string) ([][]float32, error) {
	s.batchCalls++

	for _, t := range texts {
		if s.failText != "" && t == s.failText {
			return nil, errors.New("模型推理失败")
		}
	}

	if s.failBatchAt > 0 && len(texts) > 1 && s.batchCalls == s.failBatchAt {
		return nil, errors.New("批量推理失败")
	}

	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec := make([]float32, s.dim)
		vec[0] = float32(len(t))
		out = append(out, vec)
	}

	if s.truncateAt > 0 && s.batchCalls == s.truncateAt && len(out) > 1 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *stubEncoder) Close() error { return nil }

func newTestProvider(enc *stubEncoder) *LocalProvider {
	p := NewLocalProvider("all-MiniLM-L6-v2", ".fastembed", 384)
	p.newEncoder = func() (textEncoder, error) {
		return enc, nil
	}
	return p
}

func makeTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("文本-%0*d", i%7+1, i)
	}
	return texts
}

func TestLocalProviderEmbedBatchPreservesOrder(t *testing.T) {
	enc := &stubEncoder{dim: 384}
	p := newTestProvider(enc)

	texts := makeTexts(250)
	got, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))

	// 结果逐条对应输入，与分块无关
	for i, text := range texts {
		require.Equal(t, float32(len(text)), got[i][0], "第 %d 条结果顺序错乱", i)
	}

	// 250 条按 100 一批应产生 3 次批量调用
	require.Equal(t, 3, enc.batchCalls)
}

func TestLocalProviderEmbedBatchEmptyInput(t *testing.T) {
	p := newTestProvider(&stubEncoder{dim: 384})

	got, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLocalProviderChunkMismatchFallsBackPerItem(t *testing.T) {
	// 第 2 次批量调用少返回一个向量，该批次应逐条重算
	enc := &stubEncoder{dim: 384, truncateAt: 2}
	p := newTestProvider(enc)

	texts := makeTexts(150)
	got, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))

	for i, text := range texts {
		require.Equal(t, float32(len(text)), got[i][0])
	}

	// 2 次批量 + 第二批 50 条逐条重算
	require.Equal(t, 52, enc.batchCalls)
}

func TestLocalProviderBatchErrorDegradesWholeRequest(t *testing.T) {
	// 第 2 次批量调用报错，全部 150 条都应降级为逐条生成
	enc := &stubEncoder{dim: 384, failBatchAt: 2}
	p := newTestProvider(enc)

	texts := makeTexts(150)
	got, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))

	for i, text := range texts {
		require.Equal(t, float32(len(text)), got[i][0])
	}

	// 1 次成功批量 + 1 次失败批量 + 150 次逐条
	require.Equal(t, 152, enc.batchCalls)
}

func TestLocalProviderPerItemFailureReturnsGenerationError(t *testing.T) {
	enc := &stubEncoder{dim: 384, failBatchAt: 1, failText: "坏文本"}
	p := newTestProvider(enc)

	_, err := p.EmbedBatch(context.Background(), []string{"正常", "坏文本", "正常"})
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	require.Equal(t, "local", genErr.Provider)
	require.NotNil(t, genErr.Unwrap())
}

func TestLocalProviderDimensionDeviationDoesNotFail(t *testing.T) {
	// 模型实际输出 128 维，与配置的 384 维不符：只告警，正常返回
	enc := &stubEncoder{dim: 128}
	p := newTestProvider(enc)

	got, err := p.EmbedBatch(context.Background(), []string{"你好"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0], 128)
}

func TestLocalProviderEmbedSingle(t *testing.T) {
	p := newTestProvider(&stubEncoder{dim: 384})

	vec, err := p.Embed(context.Background(), "测试文本")
	require.NoError(t, err)
	require.Len(t, vec, 384)
	require.Equal(t, float32(len("测试文本")), vec[0])
}

func TestLocalProviderInitializeIdempotent(t *testing.T) {
	initCount := 0
	p := NewLocalProvider("", "", 0)
	p.newEncoder = func() (textEncoder, error) {
		initCount++
		return &stubEncoder{dim: 384}, nil
	}

	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Initialize(context.Background()))
	require.Equal(t, 1, initCount)

	// 默认值生效
	require.Equal(t, 384, p.Dimension())
	require.Equal(t, "local", p.GetProviderName())
}

func TestLocalProviderInitializeRetryAfterFailure(t *testing.T) {
	attempts := 0
	p := NewLocalProvider("", "", 384)
	p.newEncoder = func() (textEncoder, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("模型下载失败")
		}
		return &stubEncoder{dim: 384}, nil
	}

	require.Error(t, p.Initialize(context.Background()))
	require.NoError(t, p.Initialize(context.Background()))
	require.Equal(t, 2, attempts)
}

func TestLocalProviderEmbedBatchRespectsContext(t *testing.T) {
	p := newTestProvider(&stubEncoder{dim: 384})
	require.NoError(t, p.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.EmbedBatch(ctx, makeTexts(10))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormatVector(t *testing.T) {
	require.Equal(t, "[]", FormatVector(nil))
	require.Equal(t, "[0.5,-1,2]", FormatVector([]float32{0.5, -1, 2}))
}
