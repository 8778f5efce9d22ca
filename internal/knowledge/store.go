package knowledge

import "context"

// EntryStore 知识库条目存储接口
type EntryStore interface {
	// BulkInsert 在单个事务中批量写入条目，原子性只到批次级别
	BulkInsert(ctx context.Context, entries []*KnowledgeEntry) error
	// DeleteByCollection 删除集合下的全部条目，返回删除数量
	DeleteByCollection(ctx context.Context, collectionName string) (int64, error)
	// DeleteByID 删除单条条目
	DeleteByID(ctx context.Context, id uint) error
	// ListByCollection 分页查询集合下的条目
	ListByCollection(ctx context.Context, collectionName string, page, pageSize int) ([]*KnowledgeEntry, int64, error)
	// Search 在集合内做余弦相似度检索
	Search(ctx context.Context, collectionName string, queryVector []float32, topK int) ([]*SearchHit, error)
}
