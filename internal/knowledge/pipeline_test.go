package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"backend/internal/progress"

	"github.com/stretchr/testify/require"
)

// fakeEntryStore 记录调用轨迹的内存存储
type fakeEntryStore struct {
	mu           sync.Mutex
	entries      []*KnowledgeEntry
	insertCalls  int
	failOnInsert int // 第 N 次 BulkInsert 返回错误，0 表示不失败
	deleteCalls  []string
	deleteErr    error
}

func (s *fakeEntryStore) BulkInsert(ctx context.Context, entries []*KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.failOnInsert > 0 && s.insertCalls == s.failOnInsert {
		return errors.New("写入超时")
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *fakeEntryStore) DeleteByCollection(ctx context.Context, collectionName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, collectionName)
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	var kept []*KnowledgeEntry
	var deleted int64
	for _, e := range s.entries {
		if e.CollectionName == collectionName {
			deleted++
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return deleted, nil
}

func (s *fakeEntryStore) DeleteByID(ctx context.Context, id uint) error { return nil }

func (s *fakeEntryStore) ListByCollection(ctx context.Context, collectionName string, page, pageSize int) ([]*KnowledgeEntry, int64, error) {
	return nil, 0, nil
}

func (s *fakeEntryStore) Search(ctx context.Context, collectionName string, queryVector []float32, topK int) ([]*SearchHit, error) {
	return nil, nil
}

func (s *fakeEntryStore) collectionEntries(collectionName string) []*KnowledgeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*KnowledgeEntry
	for _, e := range s.entries {
		if e.CollectionName == collectionName {
			out = append(out, e)
		}
	}
	return out
}

// fakeEmbedProvider 确定性向量：第一维编码文本长度
type fakeEmbedProvider struct {
	initCalls int
	initErr   error
}

func (p *fakeEmbedProvider) Initialize(ctx context.Context) error {
	p.initCalls++
	return p.initErr
}

func (p *fakeEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (p *fakeEmbedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (p *fakeEmbedProvider) Dimension() int          { return 1 }
func (p *fakeEmbedProvider) GetModel() string        { return "fake-model" }
func (p *fakeEmbedProvider) GetProviderName() string { return "fake" }

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestEndToEnd(t *testing.T) {
	store := &fakeEntryStore{}
	tracker := progress.NewTracker()
	pipeline := NewPipeline(store, &fakeEmbedProvider{}, tracker, 0)

	csv := strings.Join([]string{
		`title,text`,
		`A,x`,
		`,`,
		`C,z`,
	}, "\n")
	path := writeTempCSV(t, csv)

	summary := pipeline.Ingest(context.Background(), path, "docs", true, "job-e2e")

	require.True(t, summary.Success)
	require.Equal(t, 2, summary.RecordsProcessed)
	require.Empty(t, summary.Errors)

	// 空行被丢弃，只有两条入库
	entries := store.collectionEntries("docs")
	require.Len(t, entries, 2)
	require.Equal(t, "A", entries[0].Title)
	require.Equal(t, "C", entries[1].Title)
	// 向量已格式化为 pgvector 字面量（内容 "A\nx" 长度为 3）
	require.Equal(t, "[3]", entries[0].Embedding)

	// fresh=true 先清空集合
	require.Equal(t, []string{"docs"}, store.deleteCalls)

	// 任务到达 completed 终态
	job := tracker.Get("job-e2e")
	require.NotNil(t, job)
	require.Equal(t, progress.StatusCompleted, job.Status)
	require.Equal(t, 100, job.Percentage)

	// 临时文件已删除
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestIngestDroppedEmptyRows(t *testing.T) {
	full := strings.Join([]string{
		`title,text`,
		`A,1`, `B,2`, `C,3`, `D,4`,
	}, "\n")
	withEmpty := strings.Join([]string{
		`title,text`,
		`A,1`, `B,2`, `,`, `D,4`,
	}, "\n")

	run := func(csv string) *Summary {
		store := &fakeEntryStore{}
		pipeline := NewPipeline(store, &fakeEmbedProvider{}, progress.NewTracker(), 0)
		return pipeline.Ingest(context.Background(), writeTempCSV(t, csv), "docs", false, "")
	}

	require.Equal(t, 4, run(full).RecordsProcessed)
	require.Equal(t, 3, run(withEmpty).RecordsProcessed)
}

func TestIngestBatchIsolation(t *testing.T) {
	// 6 行、每批 2 行共 3 批，第 2 批写入失败
	store := &fakeEntryStore{failOnInsert: 2}
	tracker := progress.NewTracker()
	pipeline := NewPipeline(store, &fakeEmbedProvider{}, tracker, 2)

	rows := []string{`title,text`}
	for i := 1; i <= 6; i++ {
		rows = append(rows, fmt.Sprintf("标题%d,正文%d", i, i))
	}
	path := writeTempCSV(t, strings.Join(rows, "\n"))

	summary := pipeline.Ingest(context.Background(), path, "docs", false, "job-batch")

	// 三个批次全部尝试过，失败批被隔离
	require.Equal(t, 3, store.insertCalls)
	require.Equal(t, 4, summary.RecordsProcessed)
	require.False(t, summary.Success)
	require.Len(t, summary.Errors, 1)
	require.Contains(t, summary.Errors[0], "batch 2")

	// 批次错误不影响 completed 终态
	job := tracker.Get("job-batch")
	require.Equal(t, progress.StatusCompleted, job.Status)
	require.Equal(t, []string{summary.Errors[0]}, job.Errors)
}

func TestIngestFreshReplace(t *testing.T) {
	store := &fakeEntryStore{}
	pipeline := NewPipeline(store, &fakeEmbedProvider{}, progress.NewTracker(), 0)

	first := "title,text\n旧一,a\n旧二,b\n旧三,c"
	second := "title,text\n新一,x\n新二,y"

	pipeline.Ingest(context.Background(), writeTempCSV(t, first), "X", true, "")
	pipeline.Ingest(context.Background(), writeTempCSV(t, second), "X", true, "")

	// 第二次导入后只剩第二次的行
	entries := store.collectionEntries("X")
	require.Len(t, entries, 2)
	require.Equal(t, "新一", entries[0].Title)
	require.Equal(t, "新二", entries[1].Title)
}

func TestIngestEmptyCSV(t *testing.T) {
	store := &fakeEntryStore{}
	tracker := progress.NewTracker()
	pipeline := NewPipeline(store, &fakeEmbedProvider{}, tracker, 0)

	path := writeTempCSV(t, "title,text\n")
	summary := pipeline.Ingest(context.Background(), path, "docs", false, "job-empty")

	require.False(t, summary.Success)
	require.Equal(t, 0, summary.RecordsProcessed)
	require.NotEmpty(t, summary.Errors)
	require.Zero(t, store.insertCalls)

	// 轮询端拿到 failed 终态而不是 404
	job := tracker.Get("job-empty")
	require.NotNil(t, job)
	require.Equal(t, progress.StatusFailed, job.Status)
}

func TestIngestUnreadableFile(t *testing.T) {
	tracker := progress.NewTracker()
	pipeline := NewPipeline(&fakeEntryStore{}, &fakeEmbedProvider{}, tracker, 0)

	summary := pipeline.Ingest(context.Background(),
		filepath.Join(t.TempDir(), "不存在.csv"), "docs", false, "job-fatal")

	require.False(t, summary.Success)
	require.Equal(t, progress.StatusFailed, tracker.Get("job-fatal").Status)
}

func TestIngestProviderInitFailure(t *testing.T) {
	tracker := progress.NewTracker()
	provider := &fakeEmbedProvider{initErr: errors.New("模型加载失败")}
	store := &fakeEntryStore{}
	pipeline := NewPipeline(store, provider, tracker, 0)

	path := writeTempCSV(t, "title,text\nA,x")
	summary := pipeline.Ingest(context.Background(), path, "docs", false, "job-init")

	require.False(t, summary.Success)
	require.Zero(t, store.insertCalls)

	job := tracker.Get("job-init")
	require.Equal(t, progress.StatusFailed, job.Status)
	require.Contains(t, job.Message, "模型加载失败")
}

func TestIngestFreshDeleteFailureAborts(t *testing.T) {
	store := &fakeEntryStore{deleteErr: errors.New("数据库连接断开")}
	tracker := progress.NewTracker()
	pipeline := NewPipeline(store, &fakeEmbedProvider{}, tracker, 0)

	path := writeTempCSV(t, "title,text\nA,x")
	summary := pipeline.Ingest(context.Background(), path, "docs", true, "job-del")

	require.False(t, summary.Success)
	require.Zero(t, store.insertCalls)
	require.Equal(t, progress.StatusFailed, tracker.Get("job-del").Status)
}

func TestIngestWithoutJobID(t *testing.T) {
	// 不带 jobID 的同步调用也能正常完成
	store := &fakeEntryStore{}
	pipeline := NewPipeline(store, &fakeEmbedProvider{}, progress.NewTracker(), 0)

	path := writeTempCSV(t, "title,text\nA,x")
	summary := pipeline.Ingest(context.Background(), path, "docs", false, "")

	require.True(t, summary.Success)
	require.Equal(t, 1, summary.RecordsProcessed)
}
