package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseLocation 测试位置URI解析
func TestParseLocation(t *testing.T) {
	t.Run("本地位置", func(t *testing.T) {
		loc, ok := ParseLocation("local:/data/docstore:Financial/Taxes/2024/Return 2024.pdf")
		require.True(t, ok)
		assert.Equal(t, BackendLocal, loc.Backend)
		assert.Equal(t, "/data/docstore", loc.StoreID)
		assert.Equal(t, "Financial/Taxes/2024/Return 2024.pdf", loc.RelPath)
	})

	t.Run("云端位置", func(t *testing.T) {
		loc, ok := ParseLocation("aliyun:my-bucket:inbox/doc.pdf")
		require.True(t, ok)
		assert.Equal(t, BackendAliyun, loc.Backend)
		assert.Equal(t, "my-bucket", loc.StoreID)
	})

	t.Run("相对路径可以为空", func(t *testing.T) {
		loc, ok := ParseLocation("local:/data/inbox:")
		require.True(t, ok)
		assert.Equal(t, "", loc.RelPath)
	})

	t.Run("非法URI", func(t *testing.T) {
		cases := []string{
			"",
			"local",
			"local:/data",
			":store:path",
			"ftp:server:path",
		}
		for _, uri := range cases {
			_, ok := ParseLocation(uri)
			assert.False(t, ok, uri)
		}
	})

	t.Run("解析与字符串表示往返", func(t *testing.T) {
		uri := "tencent:bucket-1:folder/file.pdf"
		loc, ok := ParseLocation(uri)
		require.True(t, ok)
		assert.Equal(t, uri, loc.String())
	})
}

// TestLocationHelpers 测试位置辅助方法
func TestLocationHelpers(t *testing.T) {
	loc := Location{Backend: BackendLocal, StoreID: "/data/store", RelPath: "Financial/Other/doc.pdf"}

	t.Run("所在目录", func(t *testing.T) {
		assert.Equal(t, "Financial/Other", loc.Folder().RelPath)
		root := Location{Backend: BackendLocal, StoreID: "/data/store", RelPath: "doc.pdf"}
		assert.Equal(t, "", root.Folder().RelPath)
	})

	t.Run("末段名称", func(t *testing.T) {
		assert.Equal(t, "doc.pdf", loc.Name())
		assert.Equal(t, "", Location{}.Name())
	})

	t.Run("同存储判断", func(t *testing.T) {
		same := Location{Backend: BackendLocal, StoreID: "/data/store", RelPath: "x.pdf"}
		other := Location{Backend: BackendLocal, StoreID: "/elsewhere", RelPath: "x.pdf"}
		assert.True(t, loc.SameStore(same))
		assert.False(t, loc.SameStore(other))
	})
}

// TestNormalizePath 测试路径规范化
func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b/c", NormalizePath("/a/b/c/"))
	assert.Equal(t, "a/b", NormalizePath("a\\b"))
	assert.Equal(t, "", NormalizePath("/"))
}
