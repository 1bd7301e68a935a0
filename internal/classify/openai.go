package classify

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/weiwangfds/docfiler/config"
)

const openaiEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClassifier OpenAI文档分类器实现
// 文档以base64编码的file内容分片随请求发送
type OpenAIClassifier struct {
	chat *httpChat
	cfg  config.ClassifyConfig
}

// NewOpenAIClassifier 创建OpenAI分类器实例
func NewOpenAIClassifier(cfg config.ClassifyConfig) *OpenAIClassifier {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIClassifier{
		chat: newHTTPChat(openaiEndpoint, cfg.APIKey, model, cfg.Timeout),
		cfg:  cfg,
	}
}

// AnalyzeDocument 分析文档并返回元数据
func (o *OpenAIClassifier) AnalyzeDocument(ctx context.Context, doc Document, layoutText, hint string, pathValid func(string) bool) (*Analysis, error) {
	if err := checkSize(doc, o.cfg.MaxFileSizeMB); err != nil {
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
				"type": "file",
				"file": map[string]string{
					"filename":  doc.Name,
					"file_data": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc.Data),
				},
			},
		},
	}}

	return runAnalysis(ctx, o.chat, messages, o.cfg.MaxRetries, pathValid, doc.Name)
}

// CompareNames 判断两个机构名称是否指同一实体
func (o *OpenAIClassifier) CompareNames(ctx context.Context, name1, name2 string) (bool, error) {
	response, err := o.chat.complete(ctx, []message{{
		Role:    "user",
		Content: fmt.Sprintf(compareNamesPrompt, name1, name2),
	}})
	if err != nil {
		return false, err
	}
	return strings.ToUpper(strings.TrimSpace(response)) == "MATCH", nil
}

// FindDuplicatePair 在目录名列表中找出最明显的一对重复项
func (o *OpenAIClassifier) FindDuplicatePair(ctx context.Context, names []string) (string, string, bool, error) {
	if len(names) < 2 {
		return "", "", false, nil
	}
	response, err := o.chat.complete(ctx, []message{{
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
func (o *OpenAIClassifier) FindMatchingFolder(ctx context.Context, newName string, existing []string) (string, bool, error) {
	if len(existing) == 0 {
		return "", false, nil
	}
	response, err := o.chat.complete(ctx, []message{{
		Role:    "user",
		Content: fmt.Sprintf(folderMatchPrompt, newName, bulletList(existing)),
	}})
	if err != nil {
		return "", false, err
	}
	match, found := parseFolderMatch(response, existing)
	return match, found, nil
}
