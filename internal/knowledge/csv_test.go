package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCSVAliases(t *testing.T) {
	// 列名大小写不敏感，id/text_content 是别名
	input := strings.Join([]string{
		`ID,Title,text_content,Category,Tags`,
		`doc-1,入学指南,第一章内容,招生,"新生,指南"`,
		`doc-2,缴费说明,第二章内容,财务,`,
	}, "\n")

	records, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "doc-1", records[0].SourceID)
	require.Equal(t, "入学指南", records[0].Title)
	require.Equal(t, "第一章内容", records[0].Text)
	require.Equal(t, "招生", records[0].Category)
	require.Equal(t, "新生,指南", records[0].Tags)

	require.Equal(t, "doc-2", records[1].SourceID)
	require.Empty(t, records[1].Tags)
}

func TestParseCSVMetadataJSON(t *testing.T) {
	input := strings.Join([]string{
		`title,text,metadata`,
		`甲,正文,"{""author"":""张三"",""year"":2026}"`,
		`乙,正文,不是JSON`,
		`丙,正文,`,
	}, "\n")

	records, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, "张三", records[0].Metadata["author"])
	require.Equal(t, float64(2026), records[0].Metadata["year"])
	// 非法 JSON 只丢弃 metadata 字段，整行保留
	require.Nil(t, records[1].Metadata)
	require.Equal(t, "乙", records[1].Title)
	require.Nil(t, records[2].Metadata)
}

func TestParseCSVUnknownColumnsIgnored(t *testing.T) {
	input := strings.Join([]string{
		`title,text,internal_flag,随便什么列`,
		`甲,正文,yes,忽略我`,
	}, "\n")

	records, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "甲", records[0].Title)
	require.Equal(t, "正文", records[0].Text)
}

func TestParseCSVShortRows(t *testing.T) {
	// 行字段数可以少于表头，缺失的列按空值处理
	input := strings.Join([]string{
		`title,text,category`,
		`甲,正文`,
	}, "\n")

	records, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, records[0].Category)
}

func TestParseCSVEmpty(t *testing.T) {
	records, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, records)

	// 只有表头没有数据行
	records, err = ParseCSV(strings.NewReader("title,text\n"))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRecordContent(t *testing.T) {
	rec := Record{Title: " 标题 ", Text: " 正文 "}
	require.Equal(t, "标题\n正文", rec.Content())

	require.Empty(t, (&Record{Title: "  ", Text: ""}).Content())
	require.Equal(t, "只有标题", (&Record{Title: "只有标题"}).Content())
	require.Equal(t, "只有正文", (&Record{Text: "只有正文"}).Content())
}
