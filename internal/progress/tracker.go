package progress

import (
	"sync"
	"time"

	"backend/internal/logger"

	"go.uber.org/zap"
)

// Status 导入任务状态
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// defaultCleanupDelay 终态任务在内存中保留的时长，
// 留给轮询端足够的时间拿到最终结果
const defaultCleanupDelay = 5 * time.Minute

// JobProgress 单个导入任务的进度快照
type JobProgress struct {
	JobID      string     `json:"jobId"`
	Status     Status     `json:"status"`
	Progress   int        `json:"progress"`   // 已处理记录数
	Total      int        `json:"total"`      // 任务开始时确定的总记录数
	Percentage int        `json:"percentage"` // floor(progress/total*100)
	Message    string     `json:"message,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
}

// terminal 判断是否已到终态
func (p *JobProgress) terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// Tracker 进程内的导入进度跟踪器
// 进度只存内存：服务重启后任务记录丢失，轮询端会收到 404
type Tracker struct {
	mu           sync.RWMutex
	jobs         map[string]*JobProgress
	cleanupDelay time.Duration
}

// Option Tracker 可选配置
type Option func(*Tracker)

// WithCleanupDelay 覆盖终态任务的保留时长（测试用）
func WithCleanupDelay(d time.Duration) Option {
	return func(t *Tracker) {
		t.cleanupDelay = d
	}
}

// NewTracker 创建进度跟踪器
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		jobs:         make(map[string]*JobProgress),
		cleanupDelay: defaultCleanupDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init 登记新任务，状态置为 processing
// 同一 jobID 重复 Init 会覆盖旧记录，唯一性由调用方保证
func (t *Tracker) Init(jobID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobs[jobID] = &JobProgress{
		JobID:     jobID,
		Status:    StatusProcessing,
		Total:     total,
		StartTime: time.Now(),
	}
}

// Update 刷新处理中任务的进度，未知或已到终态的任务忽略
func (t *Tracker) Update(jobID string, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok || job.terminal() {
		return
	}

	job.Progress = progress
	job.Percentage = percentage(progress, job.Total)
	if message != "" {
		job.Message = message
	}
}

// Complete 将任务标记为 completed，进度对齐到总数
// errs 记录被隔离的批次错误，带错误完成也是 completed 终态
func (t *Tracker) Complete(jobID string, message string, errs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok || t.refuseTerminal(job, StatusCompleted) {
		return
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.Progress = job.Total
	job.Percentage = 100
	job.Message = message
	job.Errors = errs
	job.EndTime = &now

	t.scheduleCleanup(jobID)
}

// Fail 将任务标记为 failed，保留失败前的进度
func (t *Tracker) Fail(jobID string, message string, errs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok || t.refuseTerminal(job, StatusFailed) {
		return
	}

	now := time.Now()
	job.Status = StatusFailed
	job.Message = message
	job.Errors = errs
	job.EndTime = &now

	t.scheduleCleanup(jobID)
}

// refuseTerminal 终态不可再变更，调用方必须持有写锁
func (t *Tracker) refuseTerminal(job *JobProgress, requested Status) bool {
	if !job.terminal() {
		return false
	}
	logger.Warn("任务已到终态，忽略重复的状态变更",
		zap.String("job_id", job.JobID),
		zap.String("current", string(job.Status)),
		zap.String("requested", string(requested)),
	)
	return true
}

// scheduleCleanup 终态后延迟清理，期间轮询端仍可查询到结果
func (t *Tracker) scheduleCleanup(jobID string) {
	time.AfterFunc(t.cleanupDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.jobs, jobID)
	})
}

// Get 返回任务进度的副本
// 未知任务和已清理任务都返回 nil，二者对调用方不可区分
func (t *Tracker) Get(jobID string) *JobProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return nil
	}

	snapshot := *job
	snapshot.Errors = append([]string(nil), job.Errors...)
	if job.EndTime != nil {
		end := *job.EndTime
		snapshot.EndTime = &end
	}
	return &snapshot
}

// Exists 判断任务是否仍在跟踪中
func (t *Tracker) Exists(jobID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.jobs[jobID]
	return ok
}

func percentage(progress, total int) int {
	if total <= 0 {
		return 0
	}
	return progress * 100 / total
}
