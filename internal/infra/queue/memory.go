package queue

import (
	"context"

	"backend/internal/knowledge"
	"backend/internal/logger"
	"backend/internal/worker/tasks"

	"go.uber.org/zap"
)

// memoryClient Redis 不可用时的进程内降级实现
// 任务直接在新 goroutine 中执行，进程重启会丢失排队中的任务
type memoryClient struct {
	pipeline *knowledge.Pipeline
}

// NewMemoryClient 创建进程内任务客户端
func NewMemoryClient(pipeline *knowledge.Pipeline) Client {
	return &memoryClient{pipeline: pipeline}
}

func (c *memoryClient) EnqueueIngestCSV(payload tasks.IngestCSVPayload) error {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("导入任务 panic",
					zap.String("job_id", payload.JobID),
					zap.Any("panic", r),
				)
			}
		}()

		// 后台任务的错误边界在自己内部，终态只通过进度跟踪器暴露
		summary := c.pipeline.Ingest(context.Background(),
			payload.FilePath, payload.CollectionName, payload.Fresh, payload.JobID)

		logger.Info("进程内导入任务结束",
			zap.String("job_id", payload.JobID),
			zap.Bool("success", summary.Success),
			zap.Int("records_processed", summary.RecordsProcessed),
		)
	}()

	return nil
}

func (c *memoryClient) Close() error {
	return nil
}
