// Package classify 提供文档分类协作方
// 通过大模型分析文档内容，产出标题、建议归档路径、年份、机构等元数据
// 分类质量本身不在本服务的保证范围内，调用方负责对建议路径做校验与兜底
package classify

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/weiwangfds/docfiler/config"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
)

// Analysis 文档分析结果
type Analysis struct {
	Title         string `json:"title"`          // 文档标题，不超过10个词
	SuggestedPath string `json:"suggested_path"` // 建议归档路径（斜杠分隔）
	Confidence    int    `json:"confidence"`     // 置信度 1-10，兜底结果为0
	Year          *int   `json:"year"`           // 文档所属年份
	Date          string `json:"date"`           // 文档日期
	Entity        string `json:"entity"`         // 文档关联机构
	Summary       string `json:"summary"`        // 内容摘要
}

// Document 待分类文档
type Document struct {
	Name string // 文件名，用于提示与兜底标题
	Data []byte // 文件内容
}

// Classifier 文档分类器接口
type Classifier interface {
	// AnalyzeDocument 分析文档并返回元数据
	// 参数:
	//   - doc: 待分析文档
	//   - layoutText: 布局文件原始内容，作为归档路径上下文
	//   - hint: 可选提示（如文档此前的存放路径）
	//   - pathValid: 建议路径校验函数，校验失败时携带纠正反馈重试
	// 建议路径重试耗尽或响应格式无效时返回兜底分析结果，不返回错误
	AnalyzeDocument(ctx context.Context, doc Document, layoutText, hint string, pathValid func(string) bool) (*Analysis, error)

	// CompareNames 判断两个机构名称是否指同一实体
	CompareNames(ctx context.Context, name1, name2 string) (bool, error)

	// FindDuplicatePair 在目录名列表中找出最明显的一对重复项
	FindDuplicatePair(ctx context.Context, names []string) (string, string, bool, error)

	// FindMatchingFolder 判断新目录名是否为某个已有目录的拼写变体
	FindMatchingFolder(ctx context.Context, newName string, existing []string) (string, bool, error)
}

// ClassifierFactory 分类器工厂
type ClassifierFactory struct{}

// CreateClassifier 根据配置创建分类器实例
func (f *ClassifierFactory) CreateClassifier(cfg config.ClassifyConfig) (Classifier, error) {
	switch cfg.Provider {
	case "mistral":
		return NewMistralClassifier(cfg), nil
	case "openai":
		return NewOpenAIClassifier(cfg), nil
	default:
		return nil, apperrors.NewByCode(apperrors.ErrClassifyProviderUnknown).WithDetails(cfg.Provider)
	}
}

// FallbackAnalysis 构造无法分类文档的兜底分析结果
// 标题取自文件名，路径指向不可归类目录，置信度为0
func FallbackAnalysis(name string) *Analysis {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	title := strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return &Analysis{
		Title:         title,
		SuggestedPath: "Unsortable & Other",
		Confidence:    0,
		Summary:       "Document could not be automatically classified.",
	}
}

// completer 单轮对话补全能力，由具体提供商实现
type completer interface {
	complete(ctx context.Context, messages []message) (string, error)
}

// runAnalysis 执行带路径校验重试的文档分析循环
// 响应格式无效时直接兜底；路径无效时附加针对性纠正反馈重试，
// 重试耗尽后兜底
func runAnalysis(ctx context.Context, chat completer, messages []message, maxRetries int, pathValid func(string) bool, docName string) (*Analysis, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		responseText, err := chat.complete(ctx, messages)
		if err != nil {
			return nil, err
		}

		analysis, ok := parseAnalysis(responseText)
		if !ok {
			logger.Warnf("[分类服务] 响应格式无效，文档 %s 走兜底路径", docName)
			return FallbackAnalysis(docName), nil
		}

		if pathValid == nil || pathValid(analysis.SuggestedPath) {
			return analysis, nil
		}

		logger.Infof("[分类服务] 建议路径 %q 无效，发起第 %d/%d 次重试",
			analysis.SuggestedPath, attempt+1, maxRetries)
		messages = append(messages,
			message{Role: "assistant", Content: responseText},
			message{Role: "user", Content: correctionFeedback(analysis.SuggestedPath)},
		)
	}

	logger.Warnf("[分类服务] %d 次重试后仍未得到有效路径，文档 %s 走兜底路径", maxRetries, docName)
	return FallbackAnalysis(docName), nil
}

// correctionFeedback 根据无效路径构造针对性的纠正反馈
func correctionFeedback(suggested string) string {
	feedback := "This is incorrect, the path that you suggested is not valid. "
	lower := strings.ToLower(suggested)
	switch {
	case strings.HasSuffix(lower, "by company"):
		feedback += "You used 'By company' literally - you must replace it with the actual company/entity name (e.g., 'Medical & Health/Bills/Chase' not 'Medical & Health/Bills/By company')."
	case strings.HasSuffix(lower, "by year"):
		feedback += "You used 'By year' literally - you must replace it with the actual year (e.g., 'Taxes/Federal/2024' not 'Taxes/Federal/By year')."
	default:
		feedback += "The path structure must match the layout. Where the layout shows 'By company', use the actual company/entity name. Where it shows 'By year', use the actual year. You may create new company or year folders as needed."
	}
	return feedback + " Try again."
}

// checkSize 校验文档大小是否超出分类上限
func checkSize(doc Document, maxMB int64) error {
	if maxMB <= 0 {
		maxMB = 50
	}
	if int64(len(doc.Data)) > maxMB*1024*1024 {
		return apperrors.NewByCode(apperrors.ErrClassifyFileTooLarge).
			WithDetails(fmt.Sprintf("%s: %.1fMB over %dMB limit",
				doc.Name, float64(len(doc.Data))/1024/1024, maxMB))
	}
	return nil
}

// parseYear 宽松解析年份字段
func parseYear(value string) *int {
	value = strings.TrimSpace(value)
	year, err := strconv.Atoi(value)
	if err != nil || year < 1000 || year > 9999 {
		return nil
	}
	return &year
}
