package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/knowledge"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// IngestHandler 知识库导入任务处理器
type IngestHandler struct {
	pipeline *knowledge.Pipeline
	logger   *zap.Logger
}

// NewIngestHandler 创建导入任务处理器
func NewIngestHandler(pipeline *knowledge.Pipeline, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// HandleIngestCSV 执行 CSV 导入任务
// 导入结果只通过进度跟踪器暴露；流水线自己消化批次错误，
// 这里永远返回 nil 以避免队列重试造成重复写入
func (h *IngestHandler) HandleIngestCSV(ctx context.Context, t *asynq.Task) error {
	var payload tasks.IngestCSVPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务载荷失败: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("开始处理导入任务",
		zap.String("job_id", payload.JobID),
		zap.String("collection", payload.CollectionName),
		zap.Bool("fresh", payload.Fresh),
	)

	summary := h.pipeline.Ingest(ctx,
		payload.FilePath, payload.CollectionName, payload.Fresh, payload.JobID)

	if !summary.Success {
		h.logger.Warn("导入任务存在错误",
			zap.String("job_id", payload.JobID),
			zap.Int("records_processed", summary.RecordsProcessed),
			zap.Strings("errors", summary.Errors),
		)
		return nil
	}

	h.logger.Info("导入任务完成",
		zap.String("job_id", payload.JobID),
		zap.Int("records_processed", summary.RecordsProcessed),
	)
	return nil
}
