package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiwangfds/docfiler/internal/database"
)

// setupLocalDriver 创建基于临时目录的本地驱动
func setupLocalDriver(t *testing.T) *LocalDriver {
	t.Helper()
	driver, err := NewLocalDriver(t.TempDir())
	require.NoError(t, err)
	return driver
}

// TestLocalDriverReadWrite 测试本地驱动读写
func TestLocalDriverReadWrite(t *testing.T) {
	driver := setupLocalDriver(t)

	t.Run("写入时自动创建父目录", func(t *testing.T) {
		err := driver.WriteFile("Financial/Other/doc.pdf", []byte("content"))
		require.NoError(t, err)

		data, err := driver.ReadFile("Financial/Other/doc.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), data)
	})

	t.Run("覆盖已有文件", func(t *testing.T) {
		require.NoError(t, driver.WriteFile("doc.pdf", []byte("v1")))
		require.NoError(t, driver.WriteFile("doc.pdf", []byte("v2")))

		data, err := driver.ReadFile("doc.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("读取不存在的文件", func(t *testing.T) {
		_, err := driver.ReadFile("missing.pdf")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("存在性检查", func(t *testing.T) {
		exists, err := driver.FileExists("doc.pdf")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = driver.FileExists("missing.pdf")
		require.NoError(t, err)
		assert.False(t, exists)

		// 目录不算文件
		exists, err = driver.FileExists("Financial")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

// TestLocalDriverList 测试本地驱动列举
func TestLocalDriverList(t *testing.T) {
	driver := setupLocalDriver(t)
	require.NoError(t, driver.WriteFile("a.pdf", []byte("a")))
	require.NoError(t, driver.WriteFile("notes.txt", []byte("n")))
	require.NoError(t, driver.WriteFile("Financial/Taxes/2024/return.pdf", []byte("r")))

	t.Run("递归列举并过滤扩展名", func(t *testing.T) {
		files, err := driver.ListFiles("", true, []string{".pdf"})
		require.NoError(t, err)
		require.Len(t, files, 2)

		var paths []string
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		assert.Contains(t, paths, "a.pdf")
		assert.Contains(t, paths, "Financial/Taxes/2024/return.pdf")
	})

	t.Run("非递归只看当前目录", func(t *testing.T) {
		files, err := driver.ListFiles("", false, nil)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("列举子目录", func(t *testing.T) {
		folders, err := driver.ListFolders("")
		require.NoError(t, err)
		assert.Equal(t, []string{"Financial"}, folders)

		folders, err = driver.ListFolders("Financial")
		require.NoError(t, err)
		assert.Equal(t, []string{"Taxes"}, folders)
	})

	t.Run("列举不存在的目录", func(t *testing.T) {
		_, err := driver.ListFolders("Nowhere")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

// TestLocalDriverMoveDelete 测试本地驱动移动与删除
func TestLocalDriverMoveDelete(t *testing.T) {
	driver := setupLocalDriver(t)
	require.NoError(t, driver.WriteFile("inbox/doc.pdf", []byte("content")))

	t.Run("移动保持文件名", func(t *testing.T) {
		newRel, err := driver.Move("inbox/doc.pdf", "Financial/Other")
		require.NoError(t, err)
		assert.Equal(t, "Financial/Other/doc.pdf", newRel)

		exists, err := driver.FileExists("inbox/doc.pdf")
		require.NoError(t, err)
		assert.False(t, exists)

		data, err := driver.ReadFile(newRel)
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), data)
	})

	t.Run("删除文件", func(t *testing.T) {
		require.NoError(t, driver.Delete("Financial/Other/doc.pdf"))

		exists, err := driver.FileExists("Financial/Other/doc.pdf")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("删除不存在的文件", func(t *testing.T) {
		err := driver.Delete("missing.pdf")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

// TestLocalDriverIdentity 测试本地驱动标识
func TestLocalDriverIdentity(t *testing.T) {
	driver := setupLocalDriver(t)

	assert.Equal(t, BackendLocal, driver.Backend())
	assert.NotEmpty(t, driver.StoreID())
	assert.NoError(t, driver.TestConnection())

	uri := MakeURI(driver, "Financial/doc.pdf")
	loc, ok := ParseLocation(uri)
	require.True(t, ok)
	assert.Equal(t, driver.StoreID(), loc.StoreID)
	assert.Equal(t, "Financial/doc.pdf", loc.RelPath)
}

// TestDriverFactoryLocalPrefix 测试带路径前缀的本地驱动创建
func TestDriverFactoryLocalPrefix(t *testing.T) {
	root := t.TempDir()
	factory := &DriverFactory{}

	driver, err := factory.CreateDriver(&database.StorageConfig{
		Backend: BackendLocal,
		StoreID: root,
		Prefix:  "archive",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "archive"), driver.StoreID())

	// 文件落在前缀目录之下
	require.NoError(t, driver.WriteFile("Financial/doc.pdf", []byte("content")))
	data, err := os.ReadFile(filepath.Join(root, "archive", "Financial", "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	// 前缀为空时根目录即存储标识
	plain, err := factory.CreateDriver(&database.StorageConfig{
		Backend: BackendLocal,
		StoreID: root,
	})
	require.NoError(t, err)
	assert.Equal(t, root, plain.StoreID())
}
