// Package i18n 提供国际化支持
// 负责管理应用程序的语言包和翻译功能
package i18n

import (
	"sync"

	"github.com/go-playground/locales/en_US"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/weiwangfds/docfiler/internal/logger"
)

// 支持的语言
const (
	LangZhCN = "zh-CN"
	LangEnUS = "en-US"
)

var (
	instance *I18n
	once     sync.Once

	// 语言包存储
	translations = map[string]map[string]string{
		LangZhCN: {
			"success":               "成功",
			"internal_server_error": "服务器内部错误",
			"invalid_params":        "参数错误",
			"not_found":             "资源未找到",
			"service_unavailable":   "服务不可用",
			"workflow_running":      "工作流正在执行",

			"storage_not_found":         "存储对象未找到",
			"storage_permission_denied": "存储访问被拒绝",
			"storage_transient":         "存储暂时不可用",
			"storage_conflict":          "存储对象冲突",
			"storage_read_failed":       "存储读取失败",
			"storage_write_failed":      "存储写入失败",
			"storage_move_failed":       "存储移动失败",
			"storage_delete_failed":     "存储删除失败",
			"storage_config_not_found":  "存储配置未找到",
			"storage_config_invalid":    "存储配置无效",
			"storage_backend_not_supported": "存储后端不支持",
			"storage_connection_failed": "存储连接失败",
			"storage_uri_invalid":       "存储位置URI无效",

			"classify_file_too_large":   "文件大小超出分类上限",
			"classify_unavailable":      "分类服务不可用",
			"classify_bad_response":     "分类结果格式无效",
			"classify_provider_unknown": "分类提供商不支持",

			"layout_parse_failed":     "布局文件解析失败",
			"layout_marker_missing":   "布局起始标记缺失",
			"layout_name_invalid":     "布局目录名无效",
			"layout_duplicate_sibling": "布局同级目录名重复",
			"layout_not_found":        "布局文件未找到",

			"resolve_unresolved_path": "目标路径无法解析",
			"resolve_missing_year":    "缺少年份信息",
			"resolve_missing_entity":  "缺少机构信息",

			"cache_corrupted":     "元数据缓存损坏",
			"cache_hash_mismatch": "内容哈希不一致",
			"record_not_found":    "记录未找到",
			"database_connection": "数据库连接错误",
			"database_query":      "数据库查询错误",

			"unknown_error": "未知错误",
		},
		LangEnUS: {
			"success":               "Success",
			"internal_server_error": "Internal Server Error",
			"invalid_params":        "Invalid Parameters",
			"not_found":             "Resource Not Found",
			"service_unavailable":   "Service Unavailable",
			"workflow_running":      "Workflow Already Running",

			"storage_not_found":         "Storage Object Not Found",
			"storage_permission_denied": "Storage Permission Denied",
			"storage_transient":         "Storage Temporarily Unavailable",
			"storage_conflict":          "Storage Object Conflict",
			"storage_read_failed":       "Storage Read Failed",
			"storage_write_failed":      "Storage Write Failed",
			"storage_move_failed":       "Storage Move Failed",
			"storage_delete_failed":     "Storage Delete Failed",
			"storage_config_not_found":  "Storage Config Not Found",
			"storage_config_invalid":    "Storage Config Invalid",
			"storage_backend_not_supported": "Storage Backend Not Supported",
			"storage_connection_failed": "Storage Connection Failed",
			"storage_uri_invalid":       "Storage Location URI Invalid",

			"classify_file_too_large":   "File Too Large To Classify",
			"classify_unavailable":      "Classification Service Unavailable",
			"classify_bad_response":     "Malformed Classification Response",
			"classify_provider_unknown": "Classification Provider Not Supported",

			"layout_parse_failed":     "Layout Parse Failed",
			"layout_marker_missing":   "Layout Start Marker Missing",
			"layout_name_invalid":     "Layout Folder Name Invalid",
			"layout_duplicate_sibling": "Duplicate Sibling Folder Name",
			"layout_not_found":        "Layout File Not Found",

			"resolve_unresolved_path": "Destination Path Unresolved",
			"resolve_missing_year":    "Missing Reporting Year",
			"resolve_missing_entity":  "Missing Entity",

			"cache_corrupted":     "Metadata Cache Corrupted",
			"cache_hash_mismatch": "Content Hash Mismatch",
			"record_not_found":    "Record Not Found",
			"database_connection": "Database Connection Error",
			"database_query":      "Database Query Error",

			"unknown_error": "Unknown Error",
		},
	}
)

// I18n 国际化管理器
type I18n struct {
	translators map[string]ut.Translator
	defaultLang string
}

// GetInstance 获取I18n单例
func GetInstance() *I18n {
	once.Do(func() {
		instance = &I18n{
			translators: make(map[string]ut.Translator),
			defaultLang: LangZhCN,
		}
		instance.initTranslators()
	})
	return instance
}

// initTranslators 初始化翻译器
func (i *I18n) initTranslators() {
	// 创建通用翻译器
	zhCN := zh.New()
	enUS := en_US.New()
	uni := ut.New(zhCN, enUS, zhCN)

	// 注册支持的语言 - 使用locale库的标识符
	langMappings := map[string]string{
		LangZhCN: "zh",
		LangEnUS: "en_US",
	}

	for ourLang, localeLang := range langMappings {
		trans, found := uni.GetTranslator(localeLang)
		if !found {
			logger.Errorf("初始化翻译器失败 for language %s (locale: %s): translator not found", ourLang, localeLang)
			continue
		}
		i.translators[ourLang] = trans
	}

	logger.Info("国际化翻译器初始化完成")
}

// Translate 根据键和语言获取翻译
func (i *I18n) Translate(key, lang string) string {
	// 检查语言是否支持，否则使用默认语言
	if _, exists := i.translators[lang]; !exists {
		lang = i.defaultLang
	}

	// 查找翻译
	if translation, found := translations[lang][key]; found {
		return translation
	}

	// 如果当前语言没有找到，尝试在默认语言中查找
	if lang != i.defaultLang {
		if translation, found := translations[i.defaultLang][key]; found {
			return translation
		}
	}

	logger.Warnf("未找到翻译: %s, 语言: %s", key, lang)
	return key
}

// SetDefaultLanguage 设置默认语言
func (i *I18n) SetDefaultLanguage(lang string) {
	i.defaultLang = lang
	logger.Infof("设置默认语言为: %s", lang)
}

// GetDefaultLanguage 获取默认语言
func (i *I18n) GetDefaultLanguage() string {
	return i.defaultLang
}

// IsSupportedLanguage 检查语言是否支持
func (i *I18n) IsSupportedLanguage(lang string) bool {
	_, exists := i.translators[lang]
	return exists
}

// GetSupportedLanguages 获取支持的语言列表
func (i *I18n) GetSupportedLanguages() []string {
	langs := make([]string, 0, len(i.translators))
	for lang := range i.translators {
		langs = append(langs, lang)
	}
	return langs
}
