// Package storage 提供归档库与收件箱的统一存储抽象
// 支持本地文件系统、阿里云OSS、腾讯云COS、七牛云Kodo四种后端
// 所有路径均为存储内相对路径，使用正斜杠分隔，调用方不感知后端差异
package storage

import (
	"path/filepath"

	"github.com/weiwangfds/docfiler/internal/database"
)

// Driver 存储后端驱动接口
type Driver interface {
	// Backend 返回后端类型标识（local/aliyun/tencent/qiniu）
	Backend() string

	// StoreID 返回存储标识（本地为根目录路径，云端为存储桶名称）
	StoreID() string

	// ListFiles 列出指定目录下的文件
	// 参数:
	//   - path: 存储内相对目录路径，空串表示根目录
	//   - recursive: 是否递归子目录
	//   - exts: 扩展名过滤（含点，小写），为空表示不过滤
	ListFiles(path string, recursive bool, exts []string) ([]FileInfo, error)

	// ListFolders 列出指定目录下的直接子目录名
	ListFolders(path string) ([]string, error)

	// ReadFile 读取文件全部内容
	ReadFile(path string) ([]byte, error)

	// WriteFile 写入文件，必要时创建父目录，已存在则覆盖
	WriteFile(path string, data []byte) error

	// Move 将文件移动到目标目录，保持文件名不变，返回新的相对路径
	Move(src string, destFolder string) (string, error)

	// Delete 删除文件
	Delete(path string) error

	// FileExists 检查文件是否存在
	FileExists(path string) (bool, error)

	// DisplayPath 返回面向用户的可读路径表示
	DisplayPath(path string) string

	// TestConnection 测试后端连通性
	TestConnection() error
}

// FileInfo 存储文件信息
type FileInfo struct {
	Path         string `json:"path"`          // 存储内相对路径
	Name         string `json:"name"`          // 文件名
	Size         int64  `json:"size"`          // 文件大小
	LastModified string `json:"last_modified"` // 最后修改时间
	ETag         string `json:"etag"`          // ETag，本地后端为空
}

// DriverFactory 存储驱动工厂
type DriverFactory struct{}

// CreateDriver 根据配置创建存储驱动实例
// 本地后端的路径前缀并入存储根目录，云端后端的前缀由各驱动拼到对象键上
func (f *DriverFactory) CreateDriver(config *database.StorageConfig) (Driver, error) {
	switch config.Backend {
	case BackendLocal:
		return NewLocalDriver(filepath.Join(config.StoreID, filepath.FromSlash(config.Prefix)))
	case BackendAliyun:
		return NewAliyunDriver(config)
	case BackendTencent:
		return NewTencentDriver(config)
	case BackendQiniu:
		return NewQiniuDriver(config)
	default:
		return nil, ErrUnsupportedBackend
	}
}
