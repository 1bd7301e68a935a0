// Package resolver 将文件元数据与布局树解析为确定的归档目标路径
// 解析是纯函数：相同的记录与布局永远得到相同的结果，不访问存储
package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/layout"
)

// Resolution 解析结果
type Resolution struct {
	Segments []string // 目标目录路径段，使用布局中的规范大小写
	Filename string   // 目标文件名（含扩展名）
}

// FolderPath 返回目标目录路径（斜杠分隔）
func (r Resolution) FolderPath() string {
	return strings.Join(r.Segments, "/")
}

// Path 返回含文件名的完整目标路径
func (r Resolution) Path() string {
	if len(r.Segments) == 0 {
		return r.Filename
	}
	return r.FolderPath() + "/" + r.Filename
}

// Resolve 解析记录的归档目标
// 算法:
//  1. 建议路径各段与布局做字面匹配（不区分大小写），输出采用布局中的规范大小写
//  2. 占位段（By year / By company）用记录中的年份/机构替换，缺失时报错
//  3. 字面未命中时尝试父目录的动态子目录：按年份目录要求四位数字段，按公司目录接受任意段
//  4. 路径终止于非叶子目录时，依次尝试其动态子目录（用记录值补段）与兜底子目录 Other
//  5. 任何一步失败都回退到最近祖先的兜底子目录 Other，没有兜底时返回路径无法解析错误
func Resolve(record database.FileRecord, tree *layout.Tree) (Resolution, error) {
	parts := splitPath(record.SuggestedPath)
	if len(parts) == 0 {
		return Resolution{}, apperrors.NewByCode(apperrors.ErrResolveUnresolvedPath).
			WithDetails("empty suggested path")
	}

	filename := Filename(record)

	var resolved []string
	var catchAll []string // 最近可用兜底目录的完整路径段
	var current *layout.Node

	noteCatchAll := func() {
		if ca := findChild(childrenOf(tree, current), "Other"); ca != nil {
			catchAll = append(append([]string{}, resolved...), ca.Name)
		}
	}

	fallback := func(reason string) (Resolution, error) {
		if catchAll != nil {
			return Resolution{Segments: catchAll, Filename: filename}, nil
		}
		return Resolution{}, apperrors.NewByCode(apperrors.ErrResolveUnresolvedPath).
			WithDetails(fmt.Sprintf("%s (suggested path %q)", reason, record.SuggestedPath))
	}

	for i, part := range parts {
		noteCatchAll()
		children := childrenOf(tree, current)

		// 占位段替换为记录中的真实值
		if strings.EqualFold(part, "By year") {
			if record.ReportingYear == nil {
				return Resolution{}, apperrors.NewByCode(apperrors.ErrResolveMissingYear).
					WithDetails(record.SuggestedPath)
			}
			part = strconv.Itoa(*record.ReportingYear)
		} else if strings.EqualFold(part, "By company") {
			if record.Entity == "" {
				return Resolution{}, apperrors.NewByCode(apperrors.ErrResolveMissingEntity).
					WithDetails(record.SuggestedPath)
			}
			part = record.Entity
		}

		if node := findChild(children, part); node != nil && !node.IsDynamic() {
			resolved = append(resolved, node.Name)
			current = node
			continue
		}

		// 字面未命中，尝试动态目录；动态段必须是路径的最后一段
		dyn := dynamicIn(children)
		if dyn == nil {
			return fallback(fmt.Sprintf("segment %q not in layout", part))
		}
		if i != len(parts)-1 {
			return fallback(fmt.Sprintf("dynamic segment %q is not terminal", part))
		}
		if dyn.IsDynamicYear() && !isYear(part) {
			return fallback(fmt.Sprintf("segment %q is not a year", part))
		}
		return Resolution{Segments: append(resolved, part), Filename: filename}, nil
	}

	// 路径终止于叶子目录即解析完成
	if current.IsLeaf() {
		return Resolution{Segments: resolved, Filename: filename}, nil
	}

	// 终止于非叶子目录：优先用记录值补全动态子目录
	if dyn := dynamicIn(current.Children); dyn != nil {
		if dyn.IsDynamicYear() && record.ReportingYear != nil {
			return Resolution{
				Segments: append(resolved, strconv.Itoa(*record.ReportingYear)),
				Filename: filename,
			}, nil
		}
		if dyn.IsDynamicCompany() && record.Entity != "" {
			return Resolution{
				Segments: append(resolved, record.Entity),
				Filename: filename,
			}, nil
		}
	}

	// 其次使用该目录自身的兜底子目录
	noteCatchAll()
	return fallback(fmt.Sprintf("path %q is not a leaf folder", record.SuggestedPath))
}

// Filename 根据记录构造目标文件名
// 形如 "标题 年份.pdf"，标题经过清洗，年份未知时省略
func Filename(record database.FileRecord) string {
	title := SanitizeName(record.Title)
	if title == "" {
		title = "Untitled"
	}
	if record.ReportingYear != nil {
		title = fmt.Sprintf("%s %d", title, *record.ReportingYear)
	}
	return title + extOf(record.SourceURI)
}

// CollisionVariant 返回文件名的第n个冲突变体
// n从2开始，形如 "标题 年份 (2).pdf"
func CollisionVariant(filename string, n int) string {
	ext := ""
	base := filename
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		base = filename[:idx]
		ext = filename[idx:]
	}
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// SanitizeName 清洗文件名成分
// 去除路径分隔符与控制字符，压缩连续空白，去除首尾的点与空白
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	cleaned := strings.Join(strings.Fields(sb.String()), " ")
	cleaned = strings.Trim(cleaned, ". ")
	if len(cleaned) > 150 {
		cleaned = strings.TrimRight(cleaned[:150], ". ")
	}
	return cleaned
}

// extOf 提取来源路径的扩展名（小写），无扩展名时默认.pdf
func extOf(sourceURI string) string {
	idx := strings.LastIndex(sourceURI, ".")
	if idx < 0 || idx == len(sourceURI)-1 {
		return ".pdf"
	}
	ext := strings.ToLower(sourceURI[idx:])
	if strings.ContainsAny(ext, "/\\:") {
		return ".pdf"
	}
	return ext
}

// childrenOf 返回节点的子节点列表，nil节点表示布局树顶层
func childrenOf(tree *layout.Tree, node *layout.Node) []*layout.Node {
	if node == nil {
		return tree.Roots()
	}
	return node.Children
}

// findChild 在节点列表中按名称查找，不区分大小写
func findChild(nodes []*layout.Node, name string) *layout.Node {
	for _, node := range nodes {
		if strings.EqualFold(node.Name, name) {
			return node
		}
	}
	return nil
}

// dynamicIn 返回节点列表中的动态目录
func dynamicIn(nodes []*layout.Node) *layout.Node {
	for _, node := range nodes {
		if node.IsDynamic() {
			return node
		}
	}
	return nil
}

// isYear 判断字符串是否为四位数字年份
func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitPath 拆分斜杠分隔的路径，忽略空段
func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
