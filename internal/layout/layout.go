// Package layout 提供归档库目录布局的解析与查询能力
// 布局文件由自由文本前言、起始标记和两空格缩进的目录树组成，
// 每行形如 "目录名 : 描述"，解析后的布局树不可变
package layout

import (
	"fmt"
	"strings"
	"unicode"
)

// Marker 布局起始标记，标记之前的内容作为前言保留给分类器
const Marker = "LAYOUT STARTS HERE"

// 目录名长度上限
const maxNameLen = 30

// 动态目录占位名（不区分大小写）
const (
	dynamicYear    = "by year"
	dynamicCompany = "by company"
)

// Node 布局树节点
type Node struct {
	Name        string  // 目录名
	Description string  // 目录描述，无描述时与目录名相同
	Children    []*Node // 子目录，保持布局文件中的顺序，空为叶子
}

// IsLeaf 判断节点是否为叶子目录
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsDynamicYear 判断节点是否为按年份动态目录
func (n *Node) IsDynamicYear() bool {
	return strings.EqualFold(n.Name, dynamicYear)
}

// IsDynamicCompany 判断节点是否为按公司动态目录
func (n *Node) IsDynamicCompany() bool {
	return strings.EqualFold(n.Name, dynamicCompany)
}

// IsDynamic 判断节点是否为动态目录
func (n *Node) IsDynamic() bool {
	return n.IsDynamicYear() || n.IsDynamicCompany()
}

// Child 按名称查找直接子节点，不区分大小写
func (n *Node) Child(name string) *Node {
	return findChild(n.Children, name)
}

// DynamicChild 返回节点的动态子目录，无则返回nil
func (n *Node) DynamicChild() *Node {
	for _, child := range n.Children {
		if child.IsDynamic() {
			return child
		}
	}
	return nil
}

// CatchAll 返回节点的兜底子目录（名为 Other 的字面子目录），无则返回nil
func (n *Node) CatchAll() *Node {
	return findChild(n.Children, "Other")
}

// Tree 解析后的布局树
type Tree struct {
	roots    []*Node
	preamble string
	raw      string
}

// Roots 返回顶层目录节点
func (t *Tree) Roots() []*Node {
	return t.roots
}

// Root 按名称查找顶层目录，不区分大小写
func (t *Tree) Root(name string) *Node {
	return findChild(t.roots, name)
}

// Raw 返回布局文件原始内容，供分类器作为上下文使用
func (t *Tree) Raw() string {
	return t.raw
}

// Preamble 返回起始标记之前的前言文本
func (t *Tree) Preamble() string {
	return t.preamble
}

// ParseError 布局解析错误，定位到具体行
type ParseError struct {
	Line   int    // 行号，从1开始，0表示与具体行无关
	Text   string // 出错行内容
	Reason string // 错误原因
}

// Error 实现error接口
func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("layout: %s", e.Reason)
	}
	return fmt.Sprintf("layout line %d (%q): %s", e.Line, e.Text, e.Reason)
}

// Parse 解析布局文件内容
// 功能:
//  1. 起始标记之前的内容作为前言保留
//  2. 每两个空格缩进表示一层，行内容为 "目录名 : 描述"，描述可省略
//  3. 校验目录名：非空、不超过30字符、不以 . 或 - 开头、不含 / \ 与不可打印字符
//  4. 同级目录名重复（不区分大小写）视为致命错误
func Parse(content string) (*Tree, error) {
	tree := &Tree{raw: content}

	var preamble []string
	var stack []*Node // stack[i] 为第i层最近加入的节点
	started := false

	for lineNo, rawLine := range strings.Split(content, "\n") {
		// 缩进在任何裁剪之前计算
		depth := len(rawLine) - len(strings.TrimLeft(rawLine, " "))
		level := depth / 2

		line := strings.TrimSpace(rawLine)

		if strings.Contains(line, Marker) {
			started = true
			continue
		}
		if !started {
			preamble = append(preamble, rawLine)
			continue
		}
		if line == "" {
			continue
		}

		// 允许条目带列表符号前缀
		line = strings.TrimSpace(strings.TrimLeft(line, "-"))

		name, description := line, line
		if idx := strings.Index(line, ":"); idx >= 0 {
			name = strings.TrimSpace(line[:idx])
			description = strings.TrimSpace(line[idx+1:])
		}

		if err := validateName(name); err != nil {
			return nil, &ParseError{Line: lineNo + 1, Text: line, Reason: err.Error()}
		}

		if level > len(stack) {
			level = len(stack)
		}
		stack = stack[:level]

		node := &Node{Name: name, Description: description}

		siblings := tree.roots
		if len(stack) > 0 {
			siblings = stack[len(stack)-1].Children
		}
		if findChild(siblings, name) != nil {
			return nil, &ParseError{Line: lineNo + 1, Text: line, Reason: "duplicate sibling folder name"}
		}

		if len(stack) == 0 {
			tree.roots = append(tree.roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}

	if !started {
		return nil, &ParseError{Reason: "start marker '" + Marker + "' not found"}
	}
	if len(tree.roots) == 0 {
		return nil, &ParseError{Reason: "no layout entries found after the start marker"}
	}

	tree.preamble = strings.Join(preamble, "\n")
	return tree, nil
}

// validateName 校验目录名
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("folder name cannot be empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("folder name too long (max %d chars)", maxNameLen)
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "-") {
		return fmt.Errorf("folder name cannot start with '.' or '-'")
	}
	for _, r := range name {
		if r == '/' || r == '\\' || !unicode.IsPrint(r) {
			return fmt.Errorf("folder name contains invalid character %q", r)
		}
	}
	return nil
}

// PathExists 判断路径是否为布局中的合法叶子目录
// 规则:
//  1. 各路径段按字面匹配（不区分大小写）
//  2. 父目录存在按年份动态目录时，任意四位数字可作为叶子
//  3. 父目录存在按公司动态目录时，任意名称可作为叶子
//  4. 以占位名（By year / By company）结尾的路径不合法
//  5. 非动态路径必须终止于叶子目录
func (t *Tree) PathExists(path string) bool {
	parts := splitPath(path)
	if len(parts) == 0 {
		return false
	}

	children := t.roots
	var current *Node
	for i, part := range parts {
		node := findChild(children, part)
		if node == nil {
			// 字面未命中时尝试动态目录替换，动态段必须是最后一段
			dyn := dynamicIn(children)
			if dyn == nil || i != len(parts)-1 {
				return false
			}
			if dyn.IsDynamicYear() && !isYear(part) {
				return false
			}
			return true
		}
		current = node
		children = node.Children
	}

	// 以占位名结尾的路径必须替换为真实值
	if current.IsDynamic() {
		return false
	}
	return current.IsLeaf()
}

// ByCompanyPaths 返回所有存在按公司动态子目录的父路径
func (t *Tree) ByCompanyPaths() []string {
	var paths []string
	var walk func(node *Node, prefix string)
	walk = func(node *Node, prefix string) {
		path := node.Name
		if prefix != "" {
			path = prefix + "/" + node.Name
		}
		for _, child := range node.Children {
			if child.IsDynamicCompany() {
				paths = append(paths, path)
			} else {
				walk(child, path)
			}
		}
	}
	for _, root := range t.roots {
		walk(root, "")
	}
	return paths
}

// Render 渲染布局树为带缩进的可读文本
func (t *Tree) Render() string {
	var sb strings.Builder
	var walk func(node *Node, level int)
	walk = func(node *Node, level int) {
		sb.WriteString(strings.Repeat("  ", level))
		sb.WriteString("- ")
		sb.WriteString(node.Name)
		if node.Description != "" && node.Description != node.Name {
			sb.WriteString(" (")
			sb.WriteString(node.Description)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
		for _, child := range node.Children {
			walk(child, level+1)
		}
	}
	for _, root := range t.roots {
		walk(root, 0)
	}
	return sb.String()
}

// findChild 在节点列表中按名称查找，不区分大小写
func findChild(nodes []*Node, name string) *Node {
	for _, node := range nodes {
		if strings.EqualFold(node.Name, name) {
			return node
		}
	}
	return nil
}

// dynamicIn 返回节点列表中的动态目录
func dynamicIn(nodes []*Node) *Node {
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
