package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/weiwangfds/docfiler/internal/errors"
)

// 测试用内容哈希（sha256("hello")）
const testHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// TestFileRecordMerge 测试元数据记录合并规则
func TestFileRecordMerge(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("较新一方的非空字段优先", func(t *testing.T) {
		older := FileRecord{
			Hash:       testHash,
			Title:      "Old Title",
			Entity:     "Old Corp",
			ObservedAt: t1,
		}
		newer := FileRecord{
			Hash:       testHash,
			Title:      "New Title",
			ObservedAt: t2,
		}

		merged, err := older.Merge(newer)
		require.NoError(t, err)
		assert.Equal(t, "New Title", merged.Title)
		// 较新一方字段为空时保留较旧一方的值
		assert.Equal(t, "Old Corp", merged.Entity)
		assert.Equal(t, t2, merged.ObservedAt)
	})

	t.Run("合并与参数顺序无关", func(t *testing.T) {
		a := FileRecord{Hash: testHash, Title: "A", ObservedAt: t1}
		b := FileRecord{Hash: testHash, Title: "B", Summary: "sum", ObservedAt: t2}

		ab, err := a.Merge(b)
		require.NoError(t, err)
		ba, err := b.Merge(a)
		require.NoError(t, err)

		assert.Equal(t, ab.Title, ba.Title)
		assert.Equal(t, ab.Summary, ba.Summary)
		assert.Equal(t, ab.ObservedAt, ba.ObservedAt)
	})

	t.Run("归档标志只进不退", func(t *testing.T) {
		filed := FileRecord{Hash: testHash, Filed: true, ObservedAt: t1}
		unfiled := FileRecord{Hash: testHash, Filed: false, ObservedAt: t2}

		merged, err := filed.Merge(unfiled)
		require.NoError(t, err)
		assert.True(t, merged.Filed, "较新记录未归档也不应回退归档标志")

		merged, err = unfiled.Merge(filed)
		require.NoError(t, err)
		assert.True(t, merged.Filed)
	})

	t.Run("指针字段合并", func(t *testing.T) {
		year := 2024
		confidence := 8
		older := FileRecord{Hash: testHash, ReportingYear: &year, ObservedAt: t1}
		newer := FileRecord{Hash: testHash, Confidence: &confidence, ObservedAt: t2}

		merged, err := older.Merge(newer)
		require.NoError(t, err)
		require.NotNil(t, merged.ReportingYear)
		require.NotNil(t, merged.Confidence)
		assert.Equal(t, 2024, *merged.ReportingYear)
		assert.Equal(t, 8, *merged.Confidence)
	})

	t.Run("哈希不一致返回错误", func(t *testing.T) {
		a := FileRecord{Hash: testHash, ObservedAt: t1}
		b := FileRecord{Hash: "0000000000000000000000000000000000000000000000000000000000000000", ObservedAt: t2}

		_, err := a.Merge(b)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCacheHashMismatch, appErr.Code)
	})

	t.Run("合并不修改原记录", func(t *testing.T) {
		a := FileRecord{Hash: testHash, Title: "A", ObservedAt: t1}
		b := FileRecord{Hash: testHash, Title: "B", ObservedAt: t2}

		_, err := a.Merge(b)
		require.NoError(t, err)
		assert.Equal(t, "A", a.Title)
		assert.Equal(t, "B", b.Title)
	})
}

// TestFileRecordClassified 测试分类完成判断
func TestFileRecordClassified(t *testing.T) {
	t.Run("标题与建议路径齐全", func(t *testing.T) {
		r := FileRecord{Title: "Tax Return", SuggestedPath: "Financial/Taxes/2024"}
		assert.True(t, r.Classified())
	})

	t.Run("缺少建议路径", func(t *testing.T) {
		r := FileRecord{Title: "Tax Return"}
		assert.False(t, r.Classified())
	})

	t.Run("缺少标题", func(t *testing.T) {
		r := FileRecord{SuggestedPath: "Financial/Taxes/2024"}
		assert.False(t, r.Classified())
	})
}
