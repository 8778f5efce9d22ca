package knowledge

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"backend/internal/logger"

	"go.uber.org/zap"
)

// Record CSV 中的一行原始记录
type Record struct {
	SourceID    string
	Title       string
	Text        string
	Category    string
	Status      string
	Comment     string
	Tags        string
	Source      string
	LastUpdated string
	Metadata    map[string]interface{}
}

// Content 拼接标题与正文，作为向量化的输入文本
// 拼接后为空的记录会被导入流程静默丢弃
func (r *Record) Content() string {
	title := strings.TrimSpace(r.Title)
	text := strings.TrimSpace(r.Text)
	return strings.TrimSpace(title + "\n" + text)
}

// 列名别名表，匹配时统一转小写
var columnAliases = map[string][]string{
	"source_id":    {"id", "source_id"},
	"title":        {"title"},
	"text":         {"text", "text_content"},
	"category":     {"category"},
	"status":       {"status"},
	"comment":      {"comment"},
	"tags":         {"tags"},
	"source":       {"source"},
	"last_updated": {"last_updated"},
	"metadata":     {"metadata"},
}

// ParseCSV 解析 CSV 为有序记录列表
// 首行必须是表头；列名大小写不敏感，未识别的列忽略
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // 允许行字段数不一致
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}

	columns := resolveColumns(header)

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("解析 CSV 第 %d 行失败: %w", line, err)
		}

		rec := Record{
			SourceID:    fieldValue(row, columns, "source_id"),
			Title:       fieldValue(row, columns, "title"),
			Text:        fieldValue(row, columns, "text"),
			Category:    fieldValue(row, columns, "category"),
			Status:      fieldValue(row, columns, "status"),
			Comment:     fieldValue(row, columns, "comment"),
			Tags:        fieldValue(row, columns, "tags"),
			Source:      fieldValue(row, columns, "source"),
			LastUpdated: fieldValue(row, columns, "last_updated"),
		}

		if raw := fieldValue(row, columns, "metadata"); raw != "" {
			var meta map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				// metadata 不是合法 JSON 时丢弃该字段，不影响整行
				logger.Warn("metadata 字段不是合法 JSON，已忽略",
					zap.Int("line", line),
					zap.Error(err),
				)
			} else {
				rec.Metadata = meta
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

// resolveColumns 按别名表把字段名映射到列下标，首个匹配的别名优先
func resolveColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}

	columns := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

func fieldValue(row []string, columns map[string]int, field string) string {
	i, ok := columns[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
