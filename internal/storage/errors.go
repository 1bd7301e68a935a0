package storage

import (
	"errors"
	"fmt"
)

// ErrUnsupportedBackend 存储后端不支持
var ErrUnsupportedBackend = errors.New("unsupported storage backend")

// ErrorKind 存储错误类别
// 调用方根据类别决定重试策略：Transient 可重试，其余为永久失败
type ErrorKind int

const (
	KindInternal         ErrorKind = iota // 内部错误
	KindNotFound                          // 对象不存在
	KindPermissionDenied                  // 访问被拒绝
	KindTransient                         // 暂时不可用，可重试
	KindConflict                          // 对象冲突（目标已存在等）
)

// String 返回错误类别的字符串表示
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// StorageError 存储操作错误
type StorageError struct {
	Kind    ErrorKind // 错误类别
	Op      string    // 失败的操作名
	Backend string    // 后端类型
	Path    string    // 相关的存储内路径
	Err     error     // 底层错误
}

// Error 实现error接口
func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s %s %q: %s: %v", e.Backend, e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s %s %q: %s", e.Backend, e.Op, e.Path, e.Kind)
}

// Unwrap 返回底层错误
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewError 创建存储错误
func NewError(kind ErrorKind, op, backend, path string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Backend: backend, Path: path, Err: err}
}

// KindOf 返回错误的存储错误类别，非存储错误归为内部错误
func KindOf(err error) ErrorKind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsNotFound 判断错误是否为对象不存在
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
