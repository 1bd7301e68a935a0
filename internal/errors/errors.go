package errors

import (
	"fmt"

	"github.com/weiwangfds/docfiler/internal/i18n"
)

// ErrorCode 错误码类型
type ErrorCode int

// 定义错误码常量
const (
	// 通用错误码 (1000-1999)
	ErrSuccess            ErrorCode = 0    // 成功
	ErrInternalServer     ErrorCode = 1000 // 服务器内部错误
	ErrInvalidParams      ErrorCode = 1001 // 参数错误
	ErrNotFound           ErrorCode = 1002 // 资源未找到
	ErrServiceUnavailable ErrorCode = 1003 // 服务不可用
	ErrWorkflowRunning    ErrorCode = 1004 // 工作流正在执行

	// 存储相关错误码 (2000-2999)
	ErrStorageNotFound            ErrorCode = 2000 // 存储对象未找到
	ErrStoragePermissionDenied    ErrorCode = 2001 // 存储访问被拒绝
	ErrStorageTransient           ErrorCode = 2002 // 存储暂时不可用
	ErrStorageConflict            ErrorCode = 2003 // 存储对象冲突
	ErrStorageReadFailed          ErrorCode = 2004 // 存储读取失败
	ErrStorageWriteFailed         ErrorCode = 2005 // 存储写入失败
	ErrStorageMoveFailed          ErrorCode = 2006 // 存储移动失败
	ErrStorageDeleteFailed        ErrorCode = 2007 // 存储删除失败
	ErrStorageConfigNotFound      ErrorCode = 2008 // 存储配置未找到
	ErrStorageConfigInvalid       ErrorCode = 2009 // 存储配置无效
	ErrStorageBackendNotSupported ErrorCode = 2010 // 存储后端不支持
	ErrStorageConnectionFailed    ErrorCode = 2011 // 存储连接失败
	ErrStorageURIInvalid          ErrorCode = 2012 // 存储位置URI无效

	// 分类相关错误码 (3000-3999)
	ErrClassifyFileTooLarge   ErrorCode = 3000 // 文件大小超出分类上限
	ErrClassifyUnavailable    ErrorCode = 3001 // 分类服务不可用
	ErrClassifyBadResponse    ErrorCode = 3002 // 分类结果格式无效
	ErrClassifyProviderUnknown ErrorCode = 3003 // 分类提供商不支持

	// 布局相关错误码 (4000-4999)
	ErrLayoutParseFailed      ErrorCode = 4000 // 布局文件解析失败
	ErrLayoutMarkerMissing    ErrorCode = 4001 // 布局起始标记缺失
	ErrLayoutNameInvalid      ErrorCode = 4002 // 布局目录名无效
	ErrLayoutDuplicateSibling ErrorCode = 4003 // 布局同级目录名重复
	ErrLayoutNotFound         ErrorCode = 4004 // 布局文件未找到

	// 路径解析相关错误码 (5000-5999)
	ErrResolveUnresolvedPath ErrorCode = 5000 // 目标路径无法解析
	ErrResolveMissingYear    ErrorCode = 5001 // 缺少年份信息
	ErrResolveMissingEntity  ErrorCode = 5002 // 缺少机构信息

	// 缓存与数据库相关错误码 (6000-6999)
	ErrCacheCorrupted     ErrorCode = 6000 // 元数据缓存损坏
	ErrCacheHashMismatch  ErrorCode = 6001 // 内容哈希不一致
	ErrRecordNotFound     ErrorCode = 6002 // 记录未找到
	ErrDatabaseConnection ErrorCode = 6003 // 数据库连接错误
	ErrDatabaseQuery      ErrorCode = 6004 // 数据库查询错误
)

// AppError 应用错误结构体
type AppError struct {
	// 错误码
	Code ErrorCode `json:"code"`
	// 错误消息
	Message string `json:"message"`
	// 详细错误信息
	Details string `json:"details,omitempty"`
	// 原始错误
	OriginalError error `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误，支持 errors.Is / errors.As 链式判断
func (e *AppError) Unwrap() error {
	return e.OriginalError
}

// WithDetails 添加详细错误信息
func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:          e.Code,
		Message:       e.Message,
		Details:       details,
		OriginalError: e.OriginalError,
	}
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewByCode 根据错误码创建应用错误，消息走i18n
func NewByCode(code ErrorCode) *AppError {
	return New(code, GetErrorMessage(code))
}

// Wrap 包装原始错误
func Wrap(code ErrorCode, message string, err error) *AppError {
	appErr := &AppError{
		Code:          code,
		Message:       message,
		OriginalError: err,
	}
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// WrapByCode 根据错误码包装原始错误，消息走i18n
func WrapByCode(code ErrorCode, err error) *AppError {
	return Wrap(code, GetErrorMessage(code), err)
}

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError 获取应用错误
func GetAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// 错误码到i18n键的映射
var errorCodeToKeyMap = map[ErrorCode]string{
	ErrSuccess:            "success",
	ErrInternalServer:     "internal_server_error",
	ErrInvalidParams:      "invalid_params",
	ErrNotFound:           "not_found",
	ErrServiceUnavailable: "service_unavailable",
	ErrWorkflowRunning:    "workflow_running",

	ErrStorageNotFound:            "storage_not_found",
	ErrStoragePermissionDenied:    "storage_permission_denied",
	ErrStorageTransient:           "storage_transient",
	ErrStorageConflict:            "storage_conflict",
	ErrStorageReadFailed:          "storage_read_failed",
	ErrStorageWriteFailed:         "storage_write_failed",
	ErrStorageMoveFailed:          "storage_move_failed",
	ErrStorageDeleteFailed:        "storage_delete_failed",
	ErrStorageConfigNotFound:      "storage_config_not_found",
	ErrStorageConfigInvalid:       "storage_config_invalid",
	ErrStorageBackendNotSupported: "storage_backend_not_supported",
	ErrStorageConnectionFailed:    "storage_connection_failed",
	ErrStorageURIInvalid:          "storage_uri_invalid",

	ErrClassifyFileTooLarge:    "classify_file_too_large",
	ErrClassifyUnavailable:     "classify_unavailable",
	ErrClassifyBadResponse:     "classify_bad_response",
	ErrClassifyProviderUnknown: "classify_provider_unknown",

	ErrLayoutParseFailed:      "layout_parse_failed",
	ErrLayoutMarkerMissing:    "layout_marker_missing",
	ErrLayoutNameInvalid:      "layout_name_invalid",
	ErrLayoutDuplicateSibling: "layout_duplicate_sibling",
	ErrLayoutNotFound:         "layout_not_found",

	ErrResolveUnresolvedPath: "resolve_unresolved_path",
	ErrResolveMissingYear:    "resolve_missing_year",
	ErrResolveMissingEntity:  "resolve_missing_entity",

	ErrCacheCorrupted:     "cache_corrupted",
	ErrCacheHashMismatch:  "cache_hash_mismatch",
	ErrRecordNotFound:     "record_not_found",
	ErrDatabaseConnection: "database_connection",
	ErrDatabaseQuery:      "database_query",
}

// GetErrorMessage 根据错误码获取错误消息（使用默认语言）
func GetErrorMessage(code ErrorCode) string {
	return GetErrorMessageWithLang(code, i18n.GetInstance().GetDefaultLanguage())
}

// GetErrorMessageWithLang 根据错误码和语言获取错误消息
func GetErrorMessageWithLang(code ErrorCode, lang string) string {
	// 获取错误码对应的i18n键
	key, exists := errorCodeToKeyMap[code]
	if !exists {
		key = "unknown_error"
	}

	// 使用i18n获取翻译
	return i18n.GetInstance().Translate(key, lang)
}
