package classify

import (
	"strconv"
	"strings"
)

// analysisFields 分析响应必须包含的全部字段
var analysisFields = []string{"TITLE", "SUGGESTED_PATH", "CONFIDENCE", "YEAR", "DATE", "ENTITY", "SUMMARY"}

// parseAnalysis 解析键值对格式的分析响应
// 七个字段缺一不可，缺失时返回 ok=false
func parseAnalysis(text string) (*Analysis, bool) {
	fields := make(map[string]string)
	for _, line := range strings.Split(stripFences(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		for _, want := range analysisFields {
			if key == want {
				fields[key] = value
				break
			}
		}
	}

	for _, want := range analysisFields {
		if _, ok := fields[want]; !ok {
			return nil, false
		}
	}

	confidence, err := strconv.Atoi(fields["CONFIDENCE"])
	if err != nil {
		confidence = 0
	}

	return &Analysis{
		Title:         fields["TITLE"],
		SuggestedPath: strings.Trim(fields["SUGGESTED_PATH"], "/ "),
		Confidence:    confidence,
		Year:          parseYear(fields["YEAR"]),
		Date:          normalizeEmpty(fields["DATE"]),
		Entity:        normalizeEmpty(fields["ENTITY"]),
		Summary:       fields["SUMMARY"],
	}, true
}

// parseDuplicate 解析去重检测响应
// 期望格式 "DUPLICATE: FolderA | FolderB" 或 "DUPLICATE: None"
// 两个名称都必须出现在候选列表中才算有效
func parseDuplicate(text string, names []string) (string, string, bool) {
	for _, line := range strings.Split(stripFences(text), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "DUPLICATE:") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, "DUPLICATE:"))
		if strings.EqualFold(value, "None") {
			return "", "", false
		}
		parts := strings.SplitN(value, "|", 2)
		if len(parts) != 2 {
			return "", "", false
		}
		first := matchName(strings.TrimSpace(parts[0]), names)
		second := matchName(strings.TrimSpace(parts[1]), names)
		if first == "" || second == "" || first == second {
			return "", "", false
		}
		return first, second, true
	}
	return "", "", false
}

// parseFolderMatch 解析目录名匹配响应
// 期望格式 "MATCH: <已有目录名>" 或 "NO_MATCH"
func parseFolderMatch(text string, existing []string) (string, bool) {
	for _, line := range strings.Split(stripFences(text), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "NO_MATCH") {
			return "", false
		}
		if strings.HasPrefix(line, "MATCH:") {
			candidate := matchName(strings.TrimSpace(strings.TrimPrefix(line, "MATCH:")), existing)
			return candidate, candidate != ""
		}
	}
	return "", false
}

// matchName 在候选列表中查找名称，不区分大小写，返回列表中的原始写法
func matchName(name string, candidates []string) string {
	for _, candidate := range candidates {
		if strings.EqualFold(candidate, name) {
			return candidate
		}
	}
	return ""
}

// stripFences 去掉模型偶尔包裹的markdown代码围栏
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

// normalizeEmpty 将模型返回的占位空值统一为空串
func normalizeEmpty(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "null", "n/a", "unknown":
		return ""
	}
	return strings.TrimSpace(value)
}
