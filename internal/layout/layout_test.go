package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用布局文件内容
const sampleLayout = `This cabinet holds household paperwork.
File bills under the company that issued them.

LAYOUT STARTS HERE
Financial : Money related documents
  Taxes : Tax returns and supporting papers
    By year
  Banking : Bank statements
    By company
  Other
Medical & Health
  Bills
    By company
  Other
Unsortable & Other : Documents that fit nowhere else
`

// TestParse 测试布局文件解析
func TestParse(t *testing.T) {
	t.Run("解析完整布局", func(t *testing.T) {
		tree, err := Parse(sampleLayout)
		require.NoError(t, err)

		roots := tree.Roots()
		require.Len(t, roots, 3)
		assert.Equal(t, "Financial", roots[0].Name)
		assert.Equal(t, "Money related documents", roots[0].Description)
		assert.Equal(t, "Medical & Health", roots[1].Name)
		// 无描述时描述与目录名相同
		assert.Equal(t, "Medical & Health", roots[1].Description)

		taxes := tree.Root("Financial").Child("Taxes")
		require.NotNil(t, taxes)
		require.Len(t, taxes.Children, 1)
		assert.True(t, taxes.Children[0].IsDynamicYear())

		banking := tree.Root("Financial").Child("Banking")
		require.NotNil(t, banking)
		assert.True(t, banking.DynamicChild().IsDynamicCompany())
	})

	t.Run("前言保留在树中", func(t *testing.T) {
		tree, err := Parse(sampleLayout)
		require.NoError(t, err)
		assert.Contains(t, tree.Preamble(), "household paperwork")
		assert.Equal(t, sampleLayout, tree.Raw())
	})

	t.Run("缺少起始标记", func(t *testing.T) {
		_, err := Parse("Financial\n  Taxes\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), Marker)
	})

	t.Run("标记之后没有条目", func(t *testing.T) {
		_, err := Parse("preamble\nLAYOUT STARTS HERE\n\n")
		require.Error(t, err)
	})

	t.Run("同级目录名重复", func(t *testing.T) {
		content := "LAYOUT STARTS HERE\nFinancial\n  Taxes\n  taxes\n"
		_, err := Parse(content)
		require.Error(t, err)
		parseErr, ok := err.(*ParseError)
		require.True(t, ok)
		assert.Equal(t, 4, parseErr.Line)
		assert.Contains(t, parseErr.Reason, "duplicate")
	})

	t.Run("目录名含非法字符", func(t *testing.T) {
		_, err := Parse("LAYOUT STARTS HERE\nFinancial\n  a/b : bad name\n")
		require.Error(t, err)
	})

	t.Run("目录名超长", func(t *testing.T) {
		_, err := Parse("LAYOUT STARTS HERE\nThisFolderNameIsWayTooLongToBeAccepted\n")
		require.Error(t, err)
	})
}

// TestPathExists 测试布局路径校验
func TestPathExists(t *testing.T) {
	tree, err := Parse(sampleLayout)
	require.NoError(t, err)

	cases := []struct {
		name  string
		path  string
		valid bool
	}{
		{"字面叶子目录", "Financial/Other", true},
		{"按年份目录接受四位数字", "Financial/Taxes/2024", true},
		{"按年份目录拒绝非年份", "Financial/Taxes/notayear", false},
		{"按公司目录接受任意名称", "Financial/Banking/Chase", true},
		{"匹配不区分大小写", "financial/banking/chase", true},
		{"占位名结尾不合法", "Financial/Taxes/By year", false},
		{"非叶子目录不合法", "Financial", false},
		{"动态段不能出现在中间", "Financial/Taxes/2024/extra", false},
		{"未知根目录", "Bogus/Stuff", false},
		{"空路径", "", false},
		{"根下的字面叶子", "Unsortable & Other", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, tree.PathExists(tc.path), tc.path)
		})
	}
}

// TestByCompanyPaths 测试按公司父目录枚举
func TestByCompanyPaths(t *testing.T) {
	tree, err := Parse(sampleLayout)
	require.NoError(t, err)

	paths := tree.ByCompanyPaths()
	assert.Equal(t, []string{"Financial/Banking", "Medical & Health/Bills"}, paths)
}

// TestRender 测试布局树渲染
func TestRender(t *testing.T) {
	tree, err := Parse(sampleLayout)
	require.NoError(t, err)

	rendered := tree.Render()
	assert.Contains(t, rendered, "- Financial (Money related documents)")
	assert.Contains(t, rendered, "  - Taxes (Tax returns and supporting papers)")
	assert.Contains(t, rendered, "    - By year")
	// 描述与名称相同时不重复输出
	assert.Contains(t, rendered, "- Medical & Health\n")
}
