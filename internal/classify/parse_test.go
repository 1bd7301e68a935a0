package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseAnalysis 测试分析响应解析
func TestParseAnalysis(t *testing.T) {
	t.Run("完整响应", func(t *testing.T) {
		text := `TITLE: Chase Statement
SUGGESTED_PATH: /Financial/Banking/Chase/
CONFIDENCE: 9
YEAR: 2024
DATE: 2024-03-15
ENTITY: Chase
SUMMARY: Monthly bank statement for March.`

		analysis, ok := parseAnalysis(text)
		require.True(t, ok)
		assert.Equal(t, "Chase Statement", analysis.Title)
		// 建议路径去除首尾斜杠
		assert.Equal(t, "Financial/Banking/Chase", analysis.SuggestedPath)
		assert.Equal(t, 9, analysis.Confidence)
		require.NotNil(t, analysis.Year)
		assert.Equal(t, 2024, *analysis.Year)
		assert.Equal(t, "2024-03-15", analysis.Date)
		assert.Equal(t, "Chase", analysis.Entity)
	})

	t.Run("带代码围栏的响应", func(t *testing.T) {
		text := "```\nTITLE: Doc\nSUGGESTED_PATH: Financial/Other\nCONFIDENCE: 5\nYEAR: None\nDATE: None\nENTITY: None\nSUMMARY: A document.\n```"

		analysis, ok := parseAnalysis(text)
		require.True(t, ok)
		assert.Equal(t, "Doc", analysis.Title)
		// 占位空值统一为空
		assert.Nil(t, analysis.Year)
		assert.Equal(t, "", analysis.Date)
		assert.Equal(t, "", analysis.Entity)
	})

	t.Run("缺少字段时拒绝", func(t *testing.T) {
		text := "TITLE: Doc\nSUGGESTED_PATH: Financial/Other\nCONFIDENCE: 5"
		_, ok := parseAnalysis(text)
		assert.False(t, ok)
	})

	t.Run("置信度无法解析时归零", func(t *testing.T) {
		text := "TITLE: Doc\nSUGGESTED_PATH: Financial/Other\nCONFIDENCE: high\nYEAR: 2024\nDATE: None\nENTITY: None\nSUMMARY: x"
		analysis, ok := parseAnalysis(text)
		require.True(t, ok)
		assert.Equal(t, 0, analysis.Confidence)
	})
}

// TestParseDuplicate 测试去重检测响应解析
func TestParseDuplicate(t *testing.T) {
	names := []string{"Chase", "Chase Bank", "Verizon"}

	t.Run("识别出重复对", func(t *testing.T) {
		first, second, found := parseDuplicate("DUPLICATE: Chase | Chase Bank", names)
		require.True(t, found)
		assert.Equal(t, "Chase", first)
		assert.Equal(t, "Chase Bank", second)
	})

	t.Run("不区分大小写并返回原始写法", func(t *testing.T) {
		first, second, found := parseDuplicate("DUPLICATE: chase | chase bank", names)
		require.True(t, found)
		assert.Equal(t, "Chase", first)
		assert.Equal(t, "Chase Bank", second)
	})

	t.Run("没有重复", func(t *testing.T) {
		_, _, found := parseDuplicate("DUPLICATE: None", names)
		assert.False(t, found)
	})

	t.Run("名称不在候选列表中", func(t *testing.T) {
		_, _, found := parseDuplicate("DUPLICATE: Chase | Citibank", names)
		assert.False(t, found)
	})

	t.Run("两个名称相同", func(t *testing.T) {
		_, _, found := parseDuplicate("DUPLICATE: Chase | chase", names)
		assert.False(t, found)
	})
}

// TestParseFolderMatch 测试目录名匹配响应解析
func TestParseFolderMatch(t *testing.T) {
	existing := []string{"Chase", "Verizon"}

	t.Run("命中已有目录", func(t *testing.T) {
		match, found := parseFolderMatch("MATCH: chase", existing)
		require.True(t, found)
		assert.Equal(t, "Chase", match)
	})

	t.Run("没有匹配", func(t *testing.T) {
		_, found := parseFolderMatch("NO_MATCH", existing)
		assert.False(t, found)
	})

	t.Run("匹配结果不在列表中", func(t *testing.T) {
		_, found := parseFolderMatch("MATCH: Citibank", existing)
		assert.False(t, found)
	})
}

// TestFallbackAnalysis 测试兜底分析结果
func TestFallbackAnalysis(t *testing.T) {
	analysis := FallbackAnalysis("bank_statement-march.pdf")
	assert.Equal(t, "bank statement march", analysis.Title)
	assert.Equal(t, "Unsortable & Other", analysis.SuggestedPath)
	assert.Equal(t, 0, analysis.Confidence)
	assert.NotEmpty(t, analysis.Summary)
}

// TestCorrectionFeedback 测试路径纠正反馈
func TestCorrectionFeedback(t *testing.T) {
	t.Run("字面使用公司占位名", func(t *testing.T) {
		feedback := correctionFeedback("Medical & Health/Bills/By company")
		assert.Contains(t, feedback, "company/entity name")
	})

	t.Run("字面使用年份占位名", func(t *testing.T) {
		feedback := correctionFeedback("Taxes/Federal/By year")
		assert.Contains(t, feedback, "actual year")
	})

	t.Run("一般无效路径", func(t *testing.T) {
		feedback := correctionFeedback("Nowhere/At/All")
		assert.Contains(t, feedback, "must match the layout")
	})
}

// TestParseYear 测试年份宽松解析
func TestParseYear(t *testing.T) {
	year := parseYear(" 2024 ")
	require.NotNil(t, year)
	assert.Equal(t, 2024, *year)

	assert.Nil(t, parseYear("None"))
	assert.Nil(t, parseYear("202"))
	assert.Nil(t, parseYear(""))
}
