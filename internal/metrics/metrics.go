package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 知识库导入指标
var (
	// IngestRunsTotal 导入任务总数
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_kb_ingest_runs_total",
			Help: "知识库导入任务总数",
		},
		[]string{"collection", "status"},
	)

	// IngestRecordsTotal 成功写入的记录总数
	IngestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_kb_ingest_records_total",
			Help: "成功写入知识库的记录总数",
		},
		[]string{"collection"},
	)

	// IngestBatchErrorsTotal 批次级失败总数
	IngestBatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_kb_ingest_batch_errors_total",
			Help: "导入过程中被隔离的批次失败总数",
		},
		[]string{"collection"},
	)

	// IngestDuration 导入任务耗时（秒）
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_kb_ingest_duration_seconds",
			Help:    "导入任务耗时分布",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"collection"},
	)
)

// 向量化指标
var (
	// EmbeddingRequestsTotal 向量化调用总数
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_embedding_requests_total",
			Help: "向量化调用总数",
		},
		[]string{"provider", "mode", "status"}, // mode: single, batch, fallback
	)

	// EmbeddingDuration 向量化耗时（秒）
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_embedding_duration_seconds",
			Help:    "向量化耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "mode"},
	)
)

// 检索指标
var (
	// SearchesTotal 知识库检索总数
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_kb_searches_total",
			Help: "知识库检索总数",
		},
		[]string{"collection", "status"},
	)

	// SearchDuration 知识库检索耗时（秒）
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_kb_search_duration_seconds",
			Help:    "知识库检索耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2},
		},
		[]string{"collection"},
	)
)
