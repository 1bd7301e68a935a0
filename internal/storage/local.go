package storage

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/weiwangfds/docfiler/internal/logger"
)

// LocalDriver 本地文件系统存储驱动
// StoreID 即存储根目录的绝对路径，所有相对路径均限定在根目录之下
type LocalDriver struct {
	root string
}

// NewLocalDriver 创建本地文件系统驱动实例
// 参数:
//   - root: 存储根目录路径，不存在时自动创建
func NewLocalDriver(root string) (*LocalDriver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, NewError(KindInternal, "init", BackendLocal, root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, mapLocalError("init", abs, err)
	}
	logger.Infof("[本地存储] 初始化完成，根目录: %s", abs)
	return &LocalDriver{root: abs}, nil
}

// Backend 返回后端类型标识
func (d *LocalDriver) Backend() string {
	return BackendLocal
}

// StoreID 返回存储根目录
func (d *LocalDriver) StoreID() string {
	return d.root
}

// abs 将存储内相对路径转换为本地绝对路径
func (d *LocalDriver) abs(relPath string) string {
	return filepath.Join(d.root, filepath.FromSlash(NormalizePath(relPath)))
}

// ListFiles 列出指定目录下的文件
func (d *LocalDriver) ListFiles(dir string, recursive bool, exts []string) ([]FileInfo, error) {
	base := d.abs(dir)
	var files []FileInfo

	if recursive {
		err := filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(d.root, p)
			if err != nil {
				return err
			}
			relSlash := filepath.ToSlash(rel)
			if !matchExt(relSlash, exts) {
				return nil
			}
			files = append(files, FileInfo{
				Path:         relSlash,
				Name:         entry.Name(),
				Size:         info.Size(),
				LastModified: info.ModTime().Format(time.RFC3339),
			})
			return nil
		})
		if err != nil {
			return nil, mapLocalError("list", dir, err)
		}
		return files, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, mapLocalError("list", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !matchExt(entry.Name(), exts) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, mapLocalError("list", dir, err)
		}
		files = append(files, FileInfo{
			Path:         NormalizePath(path.Join(NormalizePath(dir), entry.Name())),
			Name:         entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime().Format(time.RFC3339),
		})
	}
	return files, nil
}

// ListFolders 列出指定目录下的直接子目录名
func (d *LocalDriver) ListFolders(dir string) ([]string, error) {
	entries, err := os.ReadDir(d.abs(dir))
	if err != nil {
		return nil, mapLocalError("list_folders", dir, err)
	}
	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	return folders, nil
}

// ReadFile 读取文件全部内容
func (d *LocalDriver) ReadFile(relPath string) ([]byte, error) {
	data, err := os.ReadFile(d.abs(relPath))
	if err != nil {
		return nil, mapLocalError("read", relPath, err)
	}
	return data, nil
}

// WriteFile 写入文件，必要时创建父目录
func (d *LocalDriver) WriteFile(relPath string, data []byte) error {
	target := d.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return mapLocalError("write", relPath, err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return mapLocalError("write", relPath, err)
	}
	return nil
}

// Move 将文件移动到目标目录，保持文件名不变
func (d *LocalDriver) Move(src string, destFolder string) (string, error) {
	newRel := NormalizePath(path.Join(NormalizePath(destFolder), path.Base(NormalizePath(src))))
	target := d.abs(newRel)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", mapLocalError("move", src, err)
	}
	if err := os.Rename(d.abs(src), target); err != nil {
		return "", mapLocalError("move", src, err)
	}
	return newRel, nil
}

// Delete 删除文件
func (d *LocalDriver) Delete(relPath string) error {
	if err := os.Remove(d.abs(relPath)); err != nil {
		return mapLocalError("delete", relPath, err)
	}
	return nil
}

// FileExists 检查文件是否存在
func (d *LocalDriver) FileExists(relPath string) (bool, error) {
	info, err := os.Stat(d.abs(relPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, mapLocalError("stat", relPath, err)
	}
	return !info.IsDir(), nil
}

// DisplayPath 返回面向用户的可读路径表示
func (d *LocalDriver) DisplayPath(relPath string) string {
	return filepath.Join(d.root, filepath.FromSlash(NormalizePath(relPath)))
}

// TestConnection 测试根目录可访问
func (d *LocalDriver) TestConnection() error {
	if _, err := os.Stat(d.root); err != nil {
		return mapLocalError("test", "", err)
	}
	return nil
}

// matchExt 判断文件名是否命中扩展名过滤
func matchExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// mapLocalError 将文件系统错误映射为存储错误类别
func mapLocalError(op, relPath string, err error) *StorageError {
	kind := KindInternal
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, fs.ErrExist):
		kind = KindConflict
	}
	return NewError(kind, op, BackendLocal, relPath, err)
}
