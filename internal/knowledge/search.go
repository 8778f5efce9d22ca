package knowledge

import (
	"context"
	"fmt"
	"time"

	"backend/internal/embedding"
	"backend/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service 知识库检索服务
type Service struct {
	store    EntryStore
	provider embedding.Provider
}

// NewService 创建检索服务
func NewService(store EntryStore, provider embedding.Provider) *Service {
	return &Service{
		store:    store,
		provider: provider,
	}
}

// Search 对查询文本向量化后在集合内做相似度检索
func (s *Service) Search(ctx context.Context, collectionName, query string, topK int) ([]*SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("查询文本不能为空")
	}

	tracer := otel.Tracer("knowledge")
	ctx, span := tracer.Start(ctx, "knowledge.search", trace.WithAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("top_k", topK),
	))
	defer span.End()

	start := time.Now()

	queryVector, err := s.provider.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "查询向量化失败")
		metrics.SearchesTotal.WithLabelValues(collectionName, "error").Inc()
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	hits, err := s.store.Search(ctx, collectionName, queryVector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "向量检索失败")
		metrics.SearchesTotal.WithLabelValues(collectionName, "error").Inc()
		return nil, err
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	metrics.SearchesTotal.WithLabelValues(collectionName, "success").Inc()
	metrics.SearchDuration.WithLabelValues(collectionName).Observe(time.Since(start).Seconds())

	return hits, nil
}
