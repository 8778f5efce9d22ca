package tasks

// 任务类型
const (
	TypeIngestCSV = "knowledge:ingest_csv"
)

// IngestCSVPayload CSV 导入任务载荷
type IngestCSVPayload struct {
	FilePath       string `json:"filePath"`
	CollectionName string `json:"collectionName"`
	Fresh          bool   `json:"fresh"`
	JobID          string `json:"jobId"`
}
