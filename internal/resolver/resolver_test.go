package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/layout"
)

// 测试用布局文件内容
const sampleLayout = `LAYOUT STARTS HERE
Financial : Money related documents
  Taxes : Tax returns
    By year
  Banking
    By company
  Other
Medical & Health
  Bills
    By company
  Other
Unsortable & Other
`

// parseTree 解析测试布局
func parseTree(t *testing.T) *layout.Tree {
	t.Helper()
	tree, err := layout.Parse(sampleLayout)
	require.NoError(t, err)
	return tree
}

// intPtr 返回整数指针
func intPtr(v int) *int {
	return &v
}

// TestResolve 测试归档目标解析
func TestResolve(t *testing.T) {
	tree := parseTree(t)

	t.Run("字面路径采用布局规范大小写", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Receipt",
			SuggestedPath: "financial/other",
			SourceURI:     "local:/inbox:receipt.pdf",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, []string{"Financial", "Other"}, resolution.Segments)
	})

	t.Run("年份段落入按年份目录", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes/2024",
			ReportingYear: intPtr(2024),
			SourceURI:     "local:/inbox:return.pdf",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Financial/Taxes/2024", resolution.FolderPath())
		assert.Equal(t, "Tax Return 2024.pdf", resolution.Filename)
	})

	t.Run("占位段替换为记录年份", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes/By year",
			ReportingYear: intPtr(2023),
			SourceURI:     "local:/inbox:return.pdf",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Financial/Taxes/2023", resolution.FolderPath())
	})

	t.Run("占位段缺少年份报错", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes/By year",
		}
		_, err := Resolve(record, tree)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrResolveMissingYear, appErr.Code)
	})

	t.Run("占位段替换为记录机构", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Statement",
			SuggestedPath: "Financial/Banking/By company",
			Entity:        "Chase",
			SourceURI:     "local:/inbox:statement.pdf",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Financial/Banking/Chase", resolution.FolderPath())
	})

	t.Run("占位段缺少机构报错", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Statement",
			SuggestedPath: "Financial/Banking/By company",
		}
		_, err := Resolve(record, tree)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrResolveMissingEntity, appErr.Code)
	})

	t.Run("按公司目录接受任意末段", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Bill",
			SuggestedPath: "Medical & Health/Bills/City Hospital",
			SourceURI:     "local:/inbox:bill.pdf",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Medical & Health/Bills/City Hospital", resolution.FolderPath())
	})

	t.Run("非叶子终点用记录年份补段", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes",
			ReportingYear: intPtr(2022),
			SourceURI:     "local:/inbox:return.pdf",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Financial/Taxes/2022", resolution.FolderPath())
	})

	t.Run("无法补段时回退最近兜底目录", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Financial/Other", resolution.FolderPath())
	})

	t.Run("未知段回退最近兜底目录", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Mystery",
			SuggestedPath: "Financial/Gambling",
		}
		resolution, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, "Financial/Other", resolution.FolderPath())
	})

	t.Run("没有兜底目录时报错", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Mystery",
			SuggestedPath: "Bogus/Stuff",
		}
		_, err := Resolve(record, tree)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrResolveUnresolvedPath, appErr.Code)
	})

	t.Run("空建议路径报错", func(t *testing.T) {
		_, err := Resolve(database.FileRecord{Title: "x"}, tree)
		require.Error(t, err)
	})

	t.Run("解析结果确定", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes/2024",
			ReportingYear: intPtr(2024),
			SourceURI:     "local:/inbox:return.pdf",
		}
		first, err := Resolve(record, tree)
		require.NoError(t, err)
		second, err := Resolve(record, tree)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

// TestFilename 测试目标文件名构造
func TestFilename(t *testing.T) {
	t.Run("标题加年份加扩展名", func(t *testing.T) {
		record := database.FileRecord{
			Title:         "Tax Return",
			ReportingYear: intPtr(2024),
			SourceURI:     "local:/inbox:docs/return.PDF",
		}
		assert.Equal(t, "Tax Return 2024.pdf", Filename(record))
	})

	t.Run("年份未知时省略", func(t *testing.T) {
		record := database.FileRecord{Title: "Receipt", SourceURI: "local:/inbox:r.pdf"}
		assert.Equal(t, "Receipt.pdf", Filename(record))
	})

	t.Run("标题为空时使用Untitled", func(t *testing.T) {
		record := database.FileRecord{SourceURI: "local:/inbox:r.pdf"}
		assert.Equal(t, "Untitled.pdf", Filename(record))
	})

	t.Run("无扩展名时默认pdf", func(t *testing.T) {
		record := database.FileRecord{Title: "Receipt", SourceURI: "local:/inbox:receipt"}
		assert.Equal(t, "Receipt.pdf", Filename(record))
	})
}

// TestCollisionVariant 测试文件名冲突变体
func TestCollisionVariant(t *testing.T) {
	assert.Equal(t, "Tax Return 2024 (2).pdf", CollisionVariant("Tax Return 2024.pdf", 2))
	assert.Equal(t, "Tax Return 2024 (3).pdf", CollisionVariant("Tax Return 2024.pdf", 3))
	assert.Equal(t, "noext (2)", CollisionVariant("noext", 2))
}

// TestSanitizeName 测试文件名清洗
func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeName("a/b:c"))
	assert.Equal(t, "spaced out", SanitizeName("  spaced   out  "))
	assert.Equal(t, "trailing", SanitizeName("trailing..."))
	assert.Equal(t, "", SanitizeName("   "))
}
