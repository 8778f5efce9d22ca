package knowledge

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"backend/internal/embedding"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/progress"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// defaultInsertBatchSize 每批写入的记录数
// 大于向量化的块大小(100)：一个写入批次内部会发起多次向量化调用
const defaultInsertBatchSize = 200

// Summary 一次导入的最终结果
type Summary struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	RecordsProcessed int      `json:"recordsProcessed"`
	Errors           []string `json:"errors,omitempty"`
}

// Pipeline 知识库 CSV 导入流水线
// 单个任务内批次串行处理；多个任务可并发运行，互不协调
type Pipeline struct {
	store     EntryStore
	provider  embedding.Provider
	tracker   *progress.Tracker
	batchSize int

	encOnce sync.Once
	encoder *tiktoken.Tiktoken
}

// NewPipeline 创建导入流水线
func NewPipeline(store EntryStore, provider embedding.Provider, tracker *progress.Tracker, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultInsertBatchSize
	}
	return &Pipeline{
		store:     store,
		provider:  provider,
		tracker:   tracker,
		batchSize: batchSize,
	}
}

// Ingest 执行一次完整的 CSV 导入
//
// 错误分三层：空文件属于预期的用户输入问题，在结果中报告；
// 批次错误相互隔离，记录后继续；只有前置步骤失败才终止整个任务。
// 任何错误都不自动重试，调用方需重新提交整个文件。
// 无论成败，临时文件在返回前尽力删除。
func (p *Pipeline) Ingest(ctx context.Context, filePath, collectionName string, fresh bool, jobID string) *Summary {
	tracer := otel.Tracer("knowledge")
	ctx, span := tracer.Start(ctx, "knowledge.ingest", trace.WithAttributes(
		attribute.String("collection", collectionName),
		attribute.Bool("fresh", fresh),
		attribute.String("job_id", jobID),
	))
	defer span.End()

	startedAt := time.Now()
	if jobID != "" {
		ctx = logger.WithJobID(ctx, jobID)
	}
	log := logger.WithContext(ctx).With(zap.String("collection", collectionName))

	defer func() {
		// 尽力删除临时文件，失败只记日志
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			log.Warn("临时文件删除失败", zap.String("path", filePath), zap.Error(err))
		}
	}()

	// 1. 读取并解析 CSV
	file, err := os.Open(filePath)
	if err != nil {
		return p.fatal(span, log, collectionName, jobID,
			&FatalIngestionError{Stage: "read", Cause: err})
	}
	records, err := ParseCSV(file)
	file.Close()
	if err != nil {
		return p.fatal(span, log, collectionName, jobID,
			&FatalIngestionError{Stage: "parse", Cause: err})
	}

	if len(records) == 0 {
		emptyErr := &EmptyInputError{Path: filePath}
		log.Warn("CSV 文件为空，导入结束")
		if jobID != "" {
			// 登记后立即置为失败，让轮询端拿到终态而不是 404
			p.tracker.Init(jobID, 0)
			p.tracker.Fail(jobID, emptyErr.Error(), nil)
		}
		metrics.IngestRunsTotal.WithLabelValues(collectionName, "empty").Inc()
		return &Summary{
			Success: false,
			Message: emptyErr.Error(),
			Errors:  []string{emptyErr.Error()},
		}
	}

	// 2. 登记进度
	if jobID != "" {
		p.tracker.Init(jobID, len(records))
	}
	span.SetAttributes(attribute.Int("total_records", len(records)))

	// 3. 初始化向量化提供者（幂等）
	if err := p.provider.Initialize(ctx); err != nil {
		return p.fatal(span, log, collectionName, jobID,
			&FatalIngestionError{Stage: "init_provider", Cause: err})
	}

	// 4. fresh 模式先清空集合
	// 删除与后续写入不在同一事务：中途失败会留下部分替换的集合
	if fresh {
		deleted, err := p.store.DeleteByCollection(ctx, collectionName)
		if err != nil {
			return p.fatal(span, log, collectionName, jobID,
				&FatalIngestionError{Stage: "fresh_delete", Cause: err})
		}
		log.Info("已清空集合", zap.Int64("deleted", deleted))
	}

	// 5. 分批串行处理
	totalBatches := (len(records) + p.batchSize - 1) / p.batchSize
	processed := 0
	var errs []string

	for b := 0; b < totalBatches; b++ {
		start := b * p.batchSize
		end := start + p.batchSize
		if end > len(records) {
			end = len(records)
		}

		inserted, err := p.processBatch(ctx, records[start:end], collectionName)
		if err != nil {
			batchErr := &BatchProcessingError{Batch: b + 1, Cause: err}
			errs = append(errs, batchErr.Error())
			log.Error("批次处理失败，继续下一批",
				zap.Int("batch", b+1),
				zap.Int("total_batches", totalBatches),
				zap.Error(err),
			)
			metrics.IngestBatchErrorsTotal.WithLabelValues(collectionName).Inc()
		} else {
			processed += inserted
		}

		if jobID != "" {
			p.tracker.Update(jobID, processed,
				fmt.Sprintf("已处理 %d/%d 批", b+1, totalBatches))
		}
	}

	// 6. 终态：批次错误不影响 completed 状态，只有前置失败才是 failed
	var message string
	if len(errs) == 0 {
		message = fmt.Sprintf("导入完成: 成功写入 %d 条记录", processed)
	} else {
		message = fmt.Sprintf("导入完成(含错误): 成功写入 %d 条记录, %d 个批次失败", processed, len(errs))
	}
	if jobID != "" {
		p.tracker.Complete(jobID, message, errs)
	}

	status := "success"
	if len(errs) > 0 {
		status = "partial"
	}
	metrics.IngestRunsTotal.WithLabelValues(collectionName, status).Inc()
	metrics.IngestRecordsTotal.WithLabelValues(collectionName).Add(float64(processed))
	metrics.IngestDuration.WithLabelValues(collectionName).Observe(time.Since(startedAt).Seconds())

	log.Info("导入结束",
		zap.Int("records_processed", processed),
		zap.Int("batch_errors", len(errs)),
		zap.Duration("elapsed", time.Since(startedAt)),
	)

	return &Summary{
		Success:          len(errs) == 0,
		Message:          message,
		RecordsProcessed: processed,
		Errors:           errs,
	}
}

// processBatch 处理一个写入批次，返回成功写入的记录数
func (p *Pipeline) processBatch(ctx context.Context, batch []Record, collectionName string) (int, error) {
	// 标题与正文拼接为空的行静默丢弃，不算错误也不向量化
	contents := make([]string, 0, len(batch))
	survivors := make([]*Record, 0, len(batch))
	for i := range batch {
		if content := batch[i].Content(); content != "" {
			contents = append(contents, content)
			survivors = append(survivors, &batch[i])
		}
	}
	if len(survivors) == 0 {
		return 0, nil
	}

	vectors, err := p.provider.EmbedBatch(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("向量化失败: %w", err)
	}
	if len(vectors) != len(contents) {
		return 0, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(contents), len(vectors))
	}

	entries := make([]*KnowledgeEntry, 0, len(survivors))
	for i, rec := range survivors {
		entries = append(entries, &KnowledgeEntry{
			SourceID:       rec.SourceID,
			CollectionName: collectionName,
			Title:          rec.Title,
			Text:           rec.Text,
			Category:       rec.Category,
			Status:         rec.Status,
			Comment:        rec.Comment,
			Tags:           rec.Tags,
			Source:         rec.Source,
			LastUpdated:    rec.LastUpdated,
			EntryMetadata:  rec.Metadata,
			Embedding:      embedding.FormatVector(vectors[i]),
			TokenCount:     p.tokenCount(contents[i]),
		})
	}

	if err := p.store.BulkInsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("写入失败: %w", err)
	}

	return len(entries), nil
}

// tokenCount 统计文本 token 数，编码器加载失败时记 0
func (p *Pipeline) tokenCount(text string) int {
	p.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("tiktoken 编码器加载失败，token 统计记 0", zap.Error(err))
			return
		}
		p.encoder = enc
	})
	if p.encoder == nil {
		return 0
	}
	return len(p.encoder.Encode(text, nil, nil))
}

// fatal 前置步骤失败，任务终止并标记为 failed
func (p *Pipeline) fatal(span trace.Span, log *zap.Logger, collectionName, jobID string, err *FatalIngestionError) *Summary {
	log.Error("导入任务终止", zap.String("stage", err.Stage), zap.Error(err.Cause))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if jobID != "" {
		if !p.tracker.Exists(jobID) {
			p.tracker.Init(jobID, 0)
		}
		p.tracker.Fail(jobID, err.Error(), nil)
	}

	metrics.IngestRunsTotal.WithLabelValues(collectionName, "failed").Inc()
	return &Summary{
		Success: false,
		Message: err.Error(),
		Errors:  []string{err.Error()},
	}
}
