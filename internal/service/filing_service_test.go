package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/cache"
	"github.com/weiwangfds/docfiler/internal/classify"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/layout"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// 测试用布局文件内容
const testLayout = `LAYOUT STARTS HERE
Financial : Money related documents
  Taxes : Tax returns
    By year
  Banking
    By company
  Other
Unsortable & Other
`

// stubClassifier 测试用分类器
// 按预置结果应答，不访问任何外部服务
type stubClassifier struct {
	mu sync.Mutex

	analysis   *classify.Analysis
	analyzeErr error

	match      string
	matchFound bool

	dupFirst  string
	dupSecond string
	dupFound  bool

	analyzeCalls int
}

func (c *stubClassifier) AnalyzeDocument(ctx context.Context, doc classify.Document,
	layoutText, hint string, pathValid func(string) bool) (*classify.Analysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzeCalls++
	if c.analyzeErr != nil {
		return nil, c.analyzeErr
	}
	out := *c.analysis
	return &out, nil
}

func (c *stubClassifier) CompareNames(ctx context.Context, name1, name2 string) (bool, error) {
	return name1 == name2, nil
}

func (c *stubClassifier) FindDuplicatePair(ctx context.Context, names []string) (string, string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dupFound {
		return "", "", false, nil
	}
	// 只应答一次，避免合并后无限循环
	c.dupFound = false
	return c.dupFirst, c.dupSecond, true, nil
}

func (c *stubClassifier) FindMatchingFolder(ctx context.Context, newName string, existing []string) (string, bool, error) {
	return c.match, c.matchFound, nil
}

// filingFixture 归档服务测试环境
type filingFixture struct {
	db         *gorm.DB
	cache      cache.MetadataCache
	classifier *stubClassifier
	cfg        *config.Config
	svc        FilingService
	inbox      *storage.LocalDriver
	docstore   *storage.LocalDriver
	tree       *layout.Tree
}

// setupFiling 构建归档服务测试环境
// 收件箱与归档库使用各自的临时目录，布局文件预先写入归档库
func setupFiling(t *testing.T, classifier *stubClassifier) *filingFixture {
	t.Helper()

	db := setupServiceDB(t)
	metaCache := cache.NewMetadataCache(db)

	inbox, err := storage.NewLocalDriver(t.TempDir())
	require.NoError(t, err)
	docstore, err := storage.NewLocalDriver(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, docstore.WriteFile("layout.txt", []byte(testLayout)))

	cfg := &config.Config{
		Docstore: config.StoreConfig{
			URI:        "local:" + docstore.StoreID() + ":",
			LayoutFile: "layout.txt",
		},
		Inbox: config.StoreConfig{URI: "local:" + inbox.StoreID() + ":"},
		File: config.FileConfig{
			FallbackFolder:   "Unsortable & Other",
			DuplicatesFolder: "--Duplicate",
			IngressLogFolder: "--IncomingLog",
			Extensions:       []string{".pdf"},
		},
	}

	svc := NewFilingService(db, metaCache, NewStorageConfigService(db), classifier, cfg, &RunGuard{})

	tree, err := svc.LoadLayout(docstore)
	require.NoError(t, err)

	return &filingFixture{
		db:         db,
		cache:      metaCache,
		classifier: classifier,
		cfg:        cfg,
		svc:        svc,
		inbox:      inbox,
		docstore:   docstore,
		tree:       tree,
	}
}

// fileOne 将内容写入收件箱并执行单文档归档
func (f *filingFixture) fileOne(t *testing.T, name string, data []byte, opts ScanOptions) *FileResult {
	t.Helper()
	require.NoError(t, f.inbox.WriteFile(name, data))
	result, err := f.svc.FileDocument(context.Background(), f.inbox, f.docstore, f.tree,
		storage.FileInfo{Path: name, Name: name}, opts)
	require.NoError(t, err)
	return result
}

// taxAnalysis 构造指向税务目录的分类结果
func taxAnalysis() *classify.Analysis {
	year := 2024
	return &classify.Analysis{
		Title:         "Tax Return",
		SuggestedPath: "Financial/Taxes/2024",
		Confidence:    9,
		Year:          &year,
		Entity:        "IRS",
		Summary:       "Federal tax return.",
	}
}

// TestFileDocument 测试单文档归档管线
func TestFileDocument(t *testing.T) {
	t.Run("全新文档归档", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		assert.Equal(t, database.DispositionFiled, result.Disposition)
		assert.Equal(t, "local:"+f.docstore.StoreID()+":Financial/Taxes/2024/Tax Return 2024.pdf",
			result.DestinationURI)

		exists, err := f.docstore.FileExists("Financial/Taxes/2024/Tax Return 2024.pdf")
		require.NoError(t, err)
		assert.True(t, exists)

		record, err := f.cache.Get(result.Hash)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.True(t, record.Filed)
		assert.Equal(t, "Tax Return", record.Title)
	})

	t.Run("重复处理时跳过且不再分类", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})

		f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		calls := f.classifier.analyzeCalls

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		assert.Equal(t, database.DispositionSkipped, result.Disposition)
		assert.Equal(t, "already filed", result.Reason)
		assert.Equal(t, calls, f.classifier.analyzeCalls, "已分类记录不应再次调用分类器")
	})

	t.Run("空文件跳过", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})

		result := f.fileOne(t, "empty.pdf", []byte{}, ScanOptions{})
		assert.Equal(t, database.DispositionSkipped, result.Disposition)
		assert.Empty(t, result.DestinationURI)
	})

	t.Run("分类服务不可用时记为失败", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{
			analyzeErr: apperrors.NewByCode(apperrors.ErrClassifyUnavailable),
		})

		result := f.fileOne(t, "doc.pdf", []byte("content"), ScanOptions{})
		assert.Equal(t, database.DispositionFailed, result.Disposition)
		assert.Empty(t, result.DestinationURI)
	})

	t.Run("超出分类大小上限时走兜底目录", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{
			analyzeErr: apperrors.NewByCode(apperrors.ErrClassifyFileTooLarge),
		})

		result := f.fileOne(t, "big_scan.pdf", []byte("content"), ScanOptions{})
		assert.Equal(t, database.DispositionFiled, result.Disposition)
		assert.Contains(t, result.DestinationURI, "Unsortable & Other/")
	})

	t.Run("建议路径无法解析时落入兜底目录", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: &classify.Analysis{
			Title:         "Mystery",
			SuggestedPath: "Bogus/Stuff",
			Confidence:    3,
		}})

		result := f.fileOne(t, "mystery.pdf", []byte("content"), ScanOptions{})
		assert.Equal(t, database.DispositionFiled, result.Disposition)
		assert.Contains(t, result.DestinationURI, "Unsortable & Other/Mystery.pdf")

		// 分类结果保留供后续人工整理
		record, err := f.cache.Get(result.Hash)
		require.NoError(t, err)
		assert.Equal(t, "Bogus/Stuff", record.SuggestedPath)
	})

	t.Run("文件名冲突时追加数字后缀", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})
		require.NoError(t, f.docstore.WriteFile(
			"Financial/Taxes/2024/Tax Return 2024.pdf", []byte("different content")))

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		assert.Equal(t, database.DispositionFiled, result.Disposition)
		assert.Contains(t, result.DestinationURI, "Tax Return 2024 (2).pdf")

		// 原有文件未被覆盖
		data, err := f.docstore.ReadFile("Financial/Taxes/2024/Tax Return 2024.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("different content"), data)
	})

	t.Run("同内容已在目标位置时直接复用", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})
		require.NoError(t, f.docstore.WriteFile(
			"Financial/Taxes/2024/Tax Return 2024.pdf", []byte("tax return content")))

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		assert.Equal(t, database.DispositionSkipped, result.Disposition)
		assert.Equal(t, "content already at destination", result.Reason)

		record, err := f.cache.Get(result.Hash)
		require.NoError(t, err)
		assert.True(t, record.Filed)
	})

	t.Run("公司目录拼写归一", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{
			analysis: &classify.Analysis{
				Title:         "Statement",
				SuggestedPath: "Financial/Banking/Chase Bank",
				Confidence:    8,
				Entity:        "Chase Bank",
			},
			match:      "Chase",
			matchFound: true,
		})
		// 归档库中已有规范写法的公司目录
		require.NoError(t, f.docstore.WriteFile("Financial/Banking/Chase/old.pdf", []byte("old")))

		result := f.fileOne(t, "statement.pdf", []byte("statement content"), ScanOptions{})
		assert.Equal(t, database.DispositionFiled, result.Disposition)
		assert.Contains(t, result.DestinationURI, "Financial/Banking/Chase/Statement.pdf")

		record, err := f.cache.Get(result.Hash)
		require.NoError(t, err)
		assert.Equal(t, "Chase", record.Entity)
	})

	t.Run("归档位置失踪时重新复制", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})

		first := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		require.NoError(t, f.docstore.Delete("Financial/Taxes/2024/Tax Return 2024.pdf"))

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		assert.Equal(t, database.DispositionFiled, result.Disposition)
		assert.Equal(t, first.DestinationURI, result.DestinationURI)
	})

	t.Run("校验模式下修复被篡改的副本", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})

		f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})
		require.NoError(t, f.docstore.WriteFile(
			"Financial/Taxes/2024/Tax Return 2024.pdf", []byte("tampered")))

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{Verify: true})
		assert.Equal(t, database.DispositionRepaired, result.Disposition)

		data, err := f.docstore.ReadFile("Financial/Taxes/2024/Tax Return 2024.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("tax return content"), data)
	})

	t.Run("更新模式下目标目录变化时移动", func(t *testing.T) {
		f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})
		f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{})

		// 重新分类指向新的年份目录
		year := 2023
		f.classifier.analysis = &classify.Analysis{
			Title:         "Tax Return",
			SuggestedPath: "Financial/Taxes/2023",
			Confidence:    9,
			Year:          &year,
		}

		result := f.fileOne(t, "return.pdf", []byte("tax return content"), ScanOptions{Update: true})
		assert.Equal(t, database.DispositionMoved, result.Disposition)

		exists, err := f.docstore.FileExists("Financial/Taxes/2023/Tax Return 2024.pdf")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

// slowDocstore 写入前等待固定时长的归档库驱动，用于放大写入窗口
type slowDocstore struct {
	*storage.LocalDriver
	delay time.Duration
}

func (d *slowDocstore) WriteFile(relPath string, data []byte) error {
	time.Sleep(d.delay)
	return d.LocalDriver.WriteFile(relPath, data)
}

// TestConcurrentFiling 测试并发归档同名不同内容的文档
// 两个文档解析到相同目标路径时，后到者必须让位到数字后缀变体，不得互相覆盖
func TestConcurrentFiling(t *testing.T) {
	f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})
	slow := &slowDocstore{LocalDriver: f.docstore, delay: 200 * time.Millisecond}

	require.NoError(t, f.inbox.WriteFile("a.pdf", []byte("document A")))
	require.NoError(t, f.inbox.WriteFile("b.pdf", []byte("document B")))

	results := make([]*FileResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, name := range []string{"a.pdf", "b.pdf"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i], errs[i] = f.svc.FileDocument(context.Background(), f.inbox, slow, f.tree,
				storage.FileInfo{Path: name, Name: name}, ScanOptions{})
		}(i, name)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, database.DispositionFiled, results[0].Disposition)
	assert.Equal(t, database.DispositionFiled, results[1].Disposition)
	assert.NotEqual(t, results[0].DestinationURI, results[1].DestinationURI,
		"同名文档不得落到同一位置")

	// 两份内容都完好落盘，一份在原名，一份在数字后缀变体
	first, err := f.docstore.ReadFile("Financial/Taxes/2024/Tax Return 2024.pdf")
	require.NoError(t, err)
	second, err := f.docstore.ReadFile("Financial/Taxes/2024/Tax Return 2024 (2).pdf")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"document A", "document B"},
		[]string{string(first), string(second)})
}

// TestScan 测试收件箱扫描归档工作流
func TestScan(t *testing.T) {
	f := setupFiling(t, &stubClassifier{analysis: taxAnalysis()})

	// 以角色配置接入收件箱与归档库
	storageSvc := NewStorageConfigService(f.db)
	require.NoError(t, storageSvc.EnsureDefaults(f.cfg))

	require.NoError(t, f.inbox.WriteFile("return.pdf", []byte("tax return content")))
	require.NoError(t, f.inbox.WriteFile("notes.txt", []byte("ignored")))
	require.NoError(t, f.inbox.WriteFile("--Processed/old.pdf", []byte("system folder")))

	run, err := f.svc.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)

	assert.Equal(t, database.RunStatusDone, run.Status)
	assert.Equal(t, 1, run.Total, "扩展名过滤与系统目录之外只有一个文档")
	assert.Equal(t, 1, run.Filed)
	assert.NotNil(t, run.FinishedAt)

	var entries []database.FilingEntry
	require.NoError(t, f.db.Where("run_id = ?", run.RunID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, database.DispositionFiled, entries[0].Disposition)
}

// TestRunGuard 测试工作流互斥
func TestRunGuard(t *testing.T) {
	guard := &RunGuard{}

	require.NoError(t, guard.acquire(database.RunTypeScan))
	assert.Equal(t, database.RunTypeScan, guard.current())

	err := guard.acquire(database.RunTypeVerify)
	require.Error(t, err)
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrWorkflowRunning, appErr.Code)

	guard.release()
	assert.Equal(t, "", guard.current())
	require.NoError(t, guard.acquire(database.RunTypeVerify))
	guard.release()
}
