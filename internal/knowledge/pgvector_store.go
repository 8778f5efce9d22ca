package knowledge

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// searchRow 检索 Raw 查询的扫描目标
// entry_metadata 必须用实现了 sql.Scanner 的 JSONMap 接收，裸 map 无法扫描 jsonb 列
type searchRow struct {
	ID             uint              `gorm:"column:id"`
	SourceID       string            `gorm:"column:source_id"`
	CollectionName string            `gorm:"column:collection_name"`
	Title          string            `gorm:"column:title"`
	Text           string            `gorm:"column:text"`
	Category       string            `gorm:"column:category"`
	Tags           string            `gorm:"column:tags"`
	EntryMetadata  datatypes.JSONMap `gorm:"column:entry_metadata"`
	Similarity     float64           `gorm:"column:similarity"`
}

// PGVectorStore 基于 PostgreSQL pgvector 扩展的条目存储实现
type PGVectorStore struct {
	db *gorm.DB
}

// NewPGVectorStore 创建 pgvector 存储实例并确保扩展已启用
func NewPGVectorStore(db *gorm.DB) (*PGVectorStore, error) {
	store := &PGVectorStore{db: db}

	if err := store.ensureExtension(); err != nil {
		return nil, fmt.Errorf("确保pgvector扩展失败: %w", err)
	}

	return store, nil
}

// ensureExtension 确保 pgvector 扩展已启用
func (s *PGVectorStore) ensureExtension() error {
	return s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
}

// BulkInsert 在单个事务中批量写入条目
// 事务边界就是批次边界：同批全部成功或全部回滚，批与批之间互不影响
func (s *PGVectorStore) BulkInsert(ctx context.Context, entries []*KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("批量写入知识库条目失败: %w", err)
		}
		return nil
	})
}

// DeleteByCollection 物理删除集合下的全部条目，返回删除数量
func (s *PGVectorStore) DeleteByCollection(ctx context.Context, collectionName string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("collection_name = ?", collectionName).
		Delete(&KnowledgeEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除集合 %s 失败: %w", collectionName, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByID 删除单条条目
func (s *PGVectorStore) DeleteByID(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&KnowledgeEntry{}, id)
	if result.Error != nil {
		return fmt.Errorf("删除条目 %d 失败: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByCollection 分页查询集合下的条目，按插入时间倒序
func (s *PGVectorStore) ListByCollection(ctx context.Context, collectionName string, page, pageSize int) ([]*KnowledgeEntry, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).
		Model(&KnowledgeEntry{}).
		Where("collection_name = ?", collectionName)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计集合 %s 条目数失败: %w", collectionName, err)
	}

	var entries []*KnowledgeEntry
	if err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("查询集合 %s 条目失败: %w", collectionName, err)
	}

	return entries, total, nil
}

// Search 在集合内做余弦相似度检索
// <=> 是 pgvector 的余弦距离操作符，1 - 距离即相似度
func (s *PGVectorStore) Search(ctx context.Context, collectionName string, queryVector []float32, topK int) ([]*SearchHit, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("查询向量不能为空")
	}
	if topK <= 0 {
		topK = 5
	}

	query := `
		SELECT
			id,
			source_id,
			collection_name,
			title,
			text,
			category,
			tags,
			entry_metadata,
			1 - (embedding <=> ?) AS similarity
		FROM knowledge_base_entries
		WHERE collection_name = ?
		ORDER BY embedding <=> ?
		LIMIT ?
	`

	queryVec := pgvector.NewVector(queryVector)

	var rows []searchRow

	if err := s.db.WithContext(ctx).
		Raw(query, queryVec, collectionName, queryVec, topK).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	hits := make([]*SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, &SearchHit{
			ID:             r.ID,
			SourceID:       r.SourceID,
			CollectionName: r.CollectionName,
			Title:          r.Title,
			Text:           r.Text,
			Category:       r.Category,
			Tags:           r.Tags,
			Metadata:       r.EntryMetadata,
			Similarity:     r.Similarity,
		})
	}

	return hits, nil
}
