package knowledge

import (
	"time"

	"gorm.io/datatypes"
)

// KnowledgeEntry 知识库条目
// 条目只在批量导入时创建，从不原地更新；按集合整体删除或按 ID 单条删除
type KnowledgeEntry struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	SourceID       string            `gorm:"size:255;index" json:"sourceId,omitempty"`
	CollectionName string            `gorm:"size:255;not null;index" json:"collectionName"`
	Title          string            `gorm:"size:500" json:"title"`
	Text           string            `gorm:"type:text" json:"text"`
	Category       string            `gorm:"size:255" json:"category,omitempty"`
	Status         string            `gorm:"size:100" json:"status,omitempty"`
	Comment        string            `gorm:"type:text" json:"comment,omitempty"`
	Tags           string            `gorm:"size:500" json:"tags,omitempty"`
	Source         string            `gorm:"size:500" json:"source,omitempty"`
	LastUpdated    string            `gorm:"size:100" json:"lastUpdated,omitempty"`
	EntryMetadata  datatypes.JSONMap `gorm:"type:jsonb" json:"entryMetadata,omitempty"`
	// Embedding pgvector 字面量格式 '[v1,v2,...]'
	Embedding  string    `gorm:"type:vector(384)" json:"-"`
	TokenCount int       `json:"tokenCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName 指定表名
func (KnowledgeEntry) TableName() string {
	return "knowledge_base_entries"
}

// SearchHit 相似度检索结果
type SearchHit struct {
	ID             uint                   `json:"id"`
	SourceID       string                 `json:"sourceId,omitempty"`
	CollectionName string                 `json:"collectionName"`
	Title          string                 `json:"title"`
	Text           string                 `json:"text"`
	Category       string                 `json:"category,omitempty"`
	Tags           string                 `json:"tags,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Similarity     float64                `json:"similarity"`
}
