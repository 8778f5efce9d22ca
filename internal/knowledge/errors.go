package knowledge

import "fmt"

// EmptyInputError CSV 解析后没有任何记录
// 属于预期内的用户输入问题，导入结果中报告而不作为异常抛出
type EmptyInputError struct {
	Path string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("CSV 文件未解析出任何记录: %s", e.Path)
}

// BatchProcessingError 单个批次处理失败
// 批次错误相互隔离，记录后导入继续处理后续批次
type BatchProcessingError struct {
	Batch int // 从 1 开始的批次编号
	Cause error
}

func (e *BatchProcessingError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Batch, e.Cause)
}

func (e *BatchProcessingError) Unwrap() error {
	return e.Cause
}

// FatalIngestionError 导入前置步骤失败，整个任务终止
type FatalIngestionError struct {
	Stage string // read, parse, init_provider, fresh_delete
	Cause error
}

func (e *FatalIngestionError) Error() string {
	return fmt.Sprintf("导入任务终止(%s): %v", e.Stage, e.Cause)
}

func (e *FatalIngestionError) Unwrap() error {
	return e.Cause
}
