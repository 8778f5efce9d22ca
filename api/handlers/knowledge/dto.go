package knowledge

// IngestAcceptedResponse 导入请求受理响应
type IngestAcceptedResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message,omitempty"`
}

// DeleteCollectionResponse 集合删除响应
type DeleteCollectionResponse struct {
	Success bool   `json:"success"`
	Deleted int64  `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// SearchRequest 知识库检索请求
type SearchRequest struct {
	CollectionName string `json:"collectionName" binding:"required"`
	Query          string `json:"query" binding:"required,min=1"`
	TopK           int    `json:"topK"`
}
