package storage

import (
	"path"
	"strings"
)

// 支持的存储后端标识
const (
	BackendLocal   = "local"
	BackendAliyun  = "aliyun"
	BackendTencent = "tencent"
	BackendQiniu   = "qiniu"
)

// Location 存储位置，URI 形如 backend:storeID:relPath
// 例如 local:/data/docstore:Financial/Taxes/2024/Return 2024.pdf
// 或 aliyun:my-bucket:Financial/Taxes/2024/Return 2024.pdf
type Location struct {
	Backend string // 后端类型
	StoreID string // 存储标识
	RelPath string // 存储内相对路径，正斜杠分隔
}

// ParseLocation 解析位置URI
// 返回:
//   - Location: 解析结果
//   - bool: URI格式是否合法
func ParseLocation(uri string) (Location, bool) {
	parts := strings.SplitN(uri, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Location{}, false
	}
	switch parts[0] {
	case BackendLocal, BackendAliyun, BackendTencent, BackendQiniu:
	default:
		return Location{}, false
	}
	return Location{
		Backend: parts[0],
		StoreID: parts[1],
		RelPath: NormalizePath(parts[2]),
	}, true
}

// String 返回位置的URI表示
func (l Location) String() string {
	return l.Backend + ":" + l.StoreID + ":" + l.RelPath
}

// Folder 返回文件所在目录的位置
func (l Location) Folder() Location {
	dir := path.Dir(l.RelPath)
	if dir == "." {
		dir = ""
	}
	l.RelPath = dir
	return l
}

// Name 返回路径的最后一段（文件名或目录名）
func (l Location) Name() string {
	if l.RelPath == "" {
		return ""
	}
	return path.Base(l.RelPath)
}

// SameStore 判断两个位置是否位于同一存储
func (l Location) SameStore(other Location) bool {
	return l.Backend == other.Backend && l.StoreID == other.StoreID
}

// MakeURI 根据驱动与相对路径构造位置URI
func MakeURI(d Driver, relPath string) string {
	return Location{Backend: d.Backend(), StoreID: d.StoreID(), RelPath: NormalizePath(relPath)}.String()
}

// NormalizePath 规范化存储内相对路径
// 统一为正斜杠分隔并去除首尾斜杠
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(p, "/")
}
