package classify

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/weiwangfds/docfiler/config"
)

const mistralEndpoint = "https://api.mistral.ai/v1/chat/completions"

// MistralClassifier Mistral文档分类器实现
// 文档以 data URI 形式内联在 document_url 内容分片中
type MistralClassifier struct {
	chat *httpChat
	cfg  config.ClassifyConfig
}

// NewMistralClassifier 创建Mistral分类器实例
func NewMistralClassifier(cfg config.ClassifyConfig) *MistralClassifier {
	model := cfg.Model
	if model == "" {
		model = "mistral-small-latest"
	}
	return &MistralClassifier{
		chat: newHTTPChat(mistralEndpoint, cfg.APIKey, model, cfg.Timeout),
		cfg:  cfg,
	}
}

// AnalyzeDocument 分析文档并返回元数据
func (m *MistralClassifier) AnalyzeDocument(ctx context.Context, doc Document, layoutText, hint string, pathValid func(string) bool) (*Analysis, error) {
	if err := checkSize(doc, m.cfg.MaxFileSizeMB); err != nil {
		return nil, err
	}

	prompt := documentAnalysisPrompt + layoutText
	if hint != "" {
		prompt += "\n---\nOne last hint, in a different place this document was filed as: " + hint
	}

	messages := []message{{
		Role: "user",
		Content: []map[string]interface{}{
			{"type": "text", "text": prompt},
			{
				"type":         "document_url",
				"document_url": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc.Data),
			},
		},
	}}

	return runAnalysis(ctx, m.chat, messages, m.cfg.MaxRetries, pathValid, doc.Name)
}

// CompareNames 判断两个机构名称是否指同一实体
func (m *MistralClassifier) CompareNames(ctx context.Context, name1, name2 string) (bool, error) {
	response, err := m.chat.complete(ctx, []message{{
		Role:    "user",
		Content: fmt.Sprintf(compareNamesPrompt, name1, name2),
	}})
	if err != nil {
		return false, err
	}
	return strings.ToUpper(strings.TrimSpace(response)) == "MATCH", nil
}

// FindDuplicatePair 在目录名列表中找出最明显的一对重复项
func (m *MistralClassifier) FindDuplicatePair(ctx context.Context, names []string) (string, string, bool, error) {
	if len(names) < 2 {
		return "", "", false, nil
	}
	response, err := m.chat.complete(ctx, []message{{
		Role:    "user",
		Content: duplicateDetectionPrompt + bulletList(names),
	}})
	if err != nil {
		return "", "", false, err
	}
	first, second, found := parseDuplicate(response, names)
	return first, second, found, nil
}

// FindMatchingFolder 判断新目录名是否为某个已有目录的拼写变体
func (m *MistralClassifier) FindMatchingFolder(ctx context.Context, newName string, existing []string) (string, bool, error) {
	if len(existing) == 0 {
		return "", false, nil
	}
	response, err := m.chat.complete(ctx, []message{{
		Role:    "user",
		Content: fmt.Sprintf(folderMatchPrompt, newName, bulletList(existing)),
	}})
	if err != nil {
		return "", false, err
	}
	match, found := parseFolderMatch(response, existing)
	return match, found, nil
}

// bulletList 将名称列表渲染为提示词中的条目列表
func bulletList(names []string) string {
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString("- ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return sb.String()
}
