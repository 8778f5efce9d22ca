package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/logger"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueIngestCSV(payload tasks.IngestCSVPayload) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueIngestCSV(payload tasks.IngestCSVPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化任务载荷失败: %w", err)
	}

	task := asynq.NewTask(tasks.TypeIngestCSV, data)

	// 导入不自动重试：部分写入后重试会产生重复记录，由调用方重新提交
	info, err := c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("ingest"), // 导入专用队列
	)
	if err != nil {
		return fmt.Errorf("任务入队失败: %w", err)
	}

	logger.Debug("导入任务已入队",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.String("job_id", payload.JobID),
	)
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
