// 本文件实现了归档服务，负责收件箱文档的分类、目标解析与归档落位
// 主要功能包括：
// - 收件箱全量扫描归档
// - 单文档归档管线（哈希、分类、解析、复制、缓存回写）
// - 公司目录拼写归一
// - 文件名冲突处理
package service

import (
	"context"
	"path"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/cache"
	"github.com/weiwangfds/docfiler/internal/classify"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/layout"
	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/resolver"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// 单个文件名的冲突变体尝试上限
const maxCollisionVariants = 50

// ScanOptions 扫描归档选项
type ScanOptions struct {
	Update bool `json:"update"` // 重新分类已归档文档，目标变化时移动
	Verify bool `json:"verify"` // 校验已归档文档的目标内容，不一致时重新复制
}

// FileResult 单文档归档结果
type FileResult struct {
	Hash           string               `json:"hash"`            // 文档内容哈希
	SourceURI      string               `json:"source_uri"`      // 来源位置URI
	DestinationURI string               `json:"destination_uri"` // 最终落位URI，未落位时为空
	Disposition    string               `json:"disposition"`     // 处置结果
	Reason         string               `json:"reason"`          // 处置原因说明
	Record         *database.FileRecord `json:"record"`          // 落库后的元数据记录
	Summary        string               `json:"summary"`         // 文档摘要，用于摄取日志
	Err            error                `json:"-"`               // 处置为失败时的底层错误，调用方据此决定重试策略
}

// FilingService 归档服务接口
// 将收件箱中的文档分类并归档到归档库的布局目录下，元数据缓存是全程的事实来源
type FilingService interface {
	// Scan 扫描收件箱并归档全部待归档文档
	// 返回:
	//   - *database.FilingRun: 本次运行的汇总记录
	// 功能:
	//   - 递归列出收件箱中符合扩展名的文档
	//   - 逐文档执行归档管线，单文档失败不中断整体运行
	//   - 元数据缓存损坏时立即中止运行
	Scan(ctx context.Context, opts ScanOptions) (*database.FilingRun, error)

	// FileDocument 对单个文档执行完整归档管线
	// 参数:
	//   - source: 文档所在存储驱动
	//   - info: 文档信息
	//   - tree: 归档库布局树
	// 返回的错误仅在运行必须中止时非空（如缓存损坏），
	// 单文档级别的失败通过结果中的处置状态表达
	FileDocument(ctx context.Context, source storage.Driver, docstore storage.Driver,
		tree *layout.Tree, info storage.FileInfo, opts ScanOptions) (*FileResult, error)

	// LoadLayout 从归档库读取并解析布局文件
	LoadLayout(docstore storage.Driver) (*layout.Tree, error)

	// ActiveWorkflow 返回当前执行中的工作流类型，空表示空闲
	ActiveWorkflow() string
}

// filingService 归档服务实现
type filingService struct {
	db         *gorm.DB
	cache      cache.MetadataCache
	storageSvc StorageConfigService
	classifier classify.Classifier
	cfg        *config.Config
	guard      *RunGuard

	// 按归档目标URI分键的互斥锁，同一目标的存在性检查与写入串行执行
	destMu    sync.Mutex
	destLocks map[string]*sync.Mutex
}

// NewFilingService 创建归档服务实例
// 参数:
//   - db: GORM数据库连接实例
//   - metaCache: 元数据缓存服务
//   - storageSvc: 存储配置服务，用于获取归档库与收件箱驱动
//   - classifier: 文档分类器
//   - cfg: 应用配置
//   - guard: 工作流互斥锁，与其他工作流服务共享
func NewFilingService(db *gorm.DB, metaCache cache.MetadataCache, storageSvc StorageConfigService,
	classifier classify.Classifier, cfg *config.Config, guard *RunGuard) FilingService {
	return &filingService{
		db:         db,
		cache:      metaCache,
		storageSvc: storageSvc,
		classifier: classifier,
		cfg:        cfg,
		guard:      guard,
		destLocks:  make(map[string]*sync.Mutex),
	}
}

// destLock 获取指定归档目标URI的互斥锁
func (s *filingService) destLock(targetURI string) *sync.Mutex {
	s.destMu.Lock()
	defer s.destMu.Unlock()
	lock, ok := s.destLocks[targetURI]
	if !ok {
		lock = &sync.Mutex{}
		s.destLocks[targetURI] = lock
	}
	return lock
}

// Scan 扫描收件箱并归档全部待归档文档
func (s *filingService) Scan(ctx context.Context, opts ScanOptions) (*database.FilingRun, error) {
	if err := s.guard.acquire(database.RunTypeScan); err != nil {
		return nil, err
	}
	defer s.guard.release()

	recorder, err := startRun(s.db, database.RunTypeScan)
	if err != nil {
		return nil, err
	}

	docstore, err := s.storageSvc.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		return recorder.finish(err), err
	}
	inbox, err := s.storageSvc.GetActiveDriver(database.StorageRoleInbox)
	if err != nil {
		return recorder.finish(err), err
	}

	tree, err := s.LoadLayout(docstore)
	if err != nil {
		return recorder.finish(err), err
	}

	files, err := inbox.ListFiles("", true, s.cfg.File.Extensions)
	if err != nil {
		return recorder.finish(err), err
	}
	logger.Infof("[归档服务] 收件箱扫描开始，待处理文档数: %d", len(files))

	for _, info := range files {
		if err := ctx.Err(); err != nil {
			return recorder.finish(err), err
		}
		if inSystemFolder(info.Path) {
			continue
		}

		result, err := s.FileDocument(ctx, inbox, docstore, tree, info, opts)
		if err != nil {
			// 缓存损坏等致命错误，整个运行必须中止
			recorder.record("", storage.MakeURI(inbox, info.Path), "", database.DispositionFailed, err.Error())
			return recorder.finish(err), err
		}
		recorder.record(result.Hash, result.SourceURI, result.DestinationURI,
			result.Disposition, result.Reason)
	}

	return recorder.finish(nil), nil
}

// FileDocument 对单个文档执行完整归档管线
func (s *filingService) FileDocument(ctx context.Context, source storage.Driver, docstore storage.Driver,
	tree *layout.Tree, info storage.FileInfo, opts ScanOptions) (*FileResult, error) {

	sourceURI := storage.MakeURI(source, info.Path)
	result := &FileResult{SourceURI: sourceURI}

	data, err := source.ReadFile(info.Path)
	if err != nil {
		result.Disposition = database.DispositionFailed
		result.Reason = err.Error()
		result.Err = err
		return result, nil
	}
	if len(data) == 0 {
		result.Disposition = database.DispositionSkipped
		result.Reason = "empty file"
		return result, nil
	}

	hash := cache.HashBytes(data)
	result.Hash = hash

	existing, err := s.cache.Get(hash)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		result.Disposition = database.DispositionFailed
		result.Reason = err.Error()
		result.Err = err
		return result, nil
	}

	observed := database.FileRecord{Hash: hash, SourceURI: sourceURI}

	// 已有分类结果且未要求更新时直接复用，否则调用分类器
	if existing != nil && existing.Classified() && !opts.Update {
		copyClassification(&observed, existing)
	} else {
		if err := s.classifyDocument(ctx, tree, info.Name, data, existing, &observed); err != nil {
			result.Disposition = database.DispositionFailed
			result.Reason = err.Error()
			result.Err = err
			return result, nil
		}
	}
	result.Summary = observed.Summary

	// 公司目录拼写归一，避免同一公司分裂出多个目录
	s.resolveCompanyFolder(ctx, docstore, tree, &observed)

	resolution, err := resolver.Resolve(observed, tree)
	if err != nil {
		// 无法解析的文档落入兜底目录，保留分类结果供后续人工整理
		logger.Warnf("[归档服务] 目标解析失败，文档 %s 落入兜底目录: %v", info.Name, err)
		resolution = resolver.Resolution{
			Segments: []string{s.cfg.File.FallbackFolder},
			Filename: resolver.Filename(observed),
		}
	}

	if err := s.handleCopy(docstore, data, resolution, existing, &observed, opts, result); err != nil {
		if isFatal(err) {
			return nil, err
		}
		result.Disposition = database.DispositionFailed
		result.Reason = err.Error()
		result.Err = err
		return result, nil
	}

	record, err := s.cache.Upsert(observed)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		result.Disposition = database.DispositionFailed
		result.Reason = err.Error()
		result.Err = err
		return result, nil
	}
	result.Record = record
	result.DestinationURI = record.DestinationURI
	return result, nil
}

// classifyDocument 调用分类器并将结果写入观察记录
// 文件超出分类大小上限时走兜底结果，服务不可用时返回错误供上层重试
func (s *filingService) classifyDocument(ctx context.Context, tree *layout.Tree, name string,
	data []byte, existing *database.FileRecord, observed *database.FileRecord) error {

	hint := ""
	if existing != nil && existing.DestinationURI != "" {
		if loc, ok := storage.ParseLocation(existing.DestinationURI); ok {
			hint = loc.Folder().RelPath
		}
	}

	analysis, err := s.classifier.AnalyzeDocument(ctx, classify.Document{Name: name, Data: data},
		tree.Raw(), hint, tree.PathExists)
	if err != nil {
		appErr, ok := apperrors.GetAppError(err)
		if ok && appErr.Code == apperrors.ErrClassifyFileTooLarge {
			logger.Warnf("[归档服务] 文档 %s 超出分类大小上限，走兜底路径", name)
			analysis = classify.FallbackAnalysis(name)
		} else {
			return err
		}
	}

	observed.Title = analysis.Title
	observed.SuggestedPath = analysis.SuggestedPath
	confidence := analysis.Confidence
	observed.Confidence = &confidence
	observed.ReportingYear = analysis.Year
	observed.DocDate = analysis.Date
	observed.Entity = analysis.Entity
	observed.Summary = analysis.Summary
	return nil
}

// resolveCompanyFolder 公司目录拼写归一
// 建议路径的末段落在按公司动态目录下时，与归档库中已有的公司目录比对，
// 命中拼写变体时替换为已有目录名
func (s *filingService) resolveCompanyFolder(ctx context.Context, docstore storage.Driver,
	tree *layout.Tree, observed *database.FileRecord) {

	parts := splitSlashPath(observed.SuggestedPath)
	if len(parts) < 2 {
		return
	}

	parent, leaf := parts[:len(parts)-1], parts[len(parts)-1]

	// 逐段定位父目录节点，不区分大小写
	var node *layout.Node
	children := tree.Roots()
	var canonical []string
	for _, part := range parent {
		node = findLayoutChild(children, part)
		if node == nil {
			return
		}
		canonical = append(canonical, node.Name)
		children = node.Children
	}

	dyn := node.DynamicChild()
	if dyn == nil || !dyn.IsDynamicCompany() {
		return
	}
	// 末段在布局中有字面定义时不属于公司目录
	if lit := node.Child(leaf); lit != nil && !lit.IsDynamic() {
		return
	}

	parentPath := strings.Join(canonical, "/")
	folders, err := docstore.ListFolders(parentPath)
	if err != nil {
		if !storage.IsNotFound(err) {
			logger.Warnf("[归档服务] 列举公司目录失败 %s: %v", parentPath, err)
		}
		return
	}

	// 精确匹配优先，其次让分类器识别拼写变体
	for _, folder := range folders {
		if strings.EqualFold(folder, leaf) {
			observed.SuggestedPath = parentPath + "/" + folder
			return
		}
	}

	match, found, err := s.classifier.FindMatchingFolder(ctx, leaf, folders)
	if err != nil {
		logger.Warnf("[归档服务] 公司目录匹配失败 %s: %v", leaf, err)
		return
	}
	if found {
		logger.Infof("[归档服务] 公司目录归一: %q -> %q", leaf, match)
		observed.SuggestedPath = parentPath + "/" + match
		if strings.EqualFold(observed.Entity, leaf) {
			observed.Entity = match
		}
	} else {
		observed.SuggestedPath = parentPath + "/" + leaf
	}
}

// handleCopy 将文档内容落位到归档库
// 处理四种情形：已在目标位置、记录位置失踪需重新复制、目标变化需移动、全新归档
func (s *filingService) handleCopy(docstore storage.Driver, data []byte,
	resolution resolver.Resolution, existing *database.FileRecord,
	observed *database.FileRecord, opts ScanOptions, result *FileResult) error {

	// 已归档记录：核对记录中的目标位置
	if existing != nil && existing.Filed && existing.DestinationURI != "" {
		destLoc, ok := storage.ParseLocation(existing.DestinationURI)
		if ok && sameStoreAs(destLoc, docstore) {
			exists, err := docstore.FileExists(destLoc.RelPath)
			if err != nil {
				return err
			}
			if exists {
				return s.handleExistingCopy(docstore, data, resolution, destLoc, observed, opts, result)
			}
			logger.Warnf("[归档服务] 记录的归档位置失踪，重新复制: %s", existing.DestinationURI)
		}
	}

	return s.copyWithCollisions(docstore, data, resolution, observed, result)
}

// handleExistingCopy 处理目标位置已有副本的情形
func (s *filingService) handleExistingCopy(docstore storage.Driver, data []byte,
	resolution resolver.Resolution, destLoc storage.Location,
	observed *database.FileRecord, opts ScanOptions, result *FileResult) error {

	// 校验模式下核对目标内容，不一致时覆写
	if opts.Verify {
		destData, err := docstore.ReadFile(destLoc.RelPath)
		if err != nil {
			return err
		}
		if cache.HashBytes(destData) != observed.Hash {
			logger.Warnf("[归档服务] 归档副本内容不一致，重新写入: %s", destLoc.RelPath)
			if err := docstore.WriteFile(destLoc.RelPath, data); err != nil {
				return err
			}
			observed.Filed = true
			observed.DestinationURI = destLoc.String()
			result.Disposition = database.DispositionRepaired
			result.Reason = "destination content mismatch, re-copied"
			return nil
		}
	}

	currentFolder := destLoc.Folder().RelPath
	targetFolder := resolution.FolderPath()

	// 更新模式下目标目录变化时移动副本
	if opts.Update && !strings.EqualFold(currentFolder, targetFolder) {
		newRel, err := docstore.Move(destLoc.RelPath, targetFolder)
		if err != nil {
			return err
		}
		observed.Filed = true
		observed.DestinationURI = storage.MakeURI(docstore, newRel)
		result.Disposition = database.DispositionMoved
		result.Reason = "destination folder changed: " + currentFolder + " -> " + targetFolder
		logger.Infof("[归档服务] 归档副本移动: %s -> %s", destLoc.RelPath, newRel)
		return nil
	}

	observed.Filed = true
	observed.DestinationURI = destLoc.String()
	result.Disposition = database.DispositionSkipped
	result.Reason = "already filed"
	return nil
}

// copyWithCollisions 带文件名冲突处理的归档复制
// 目标已被同内容占据时直接复用，被不同内容占据时追加数字后缀重试
func (s *filingService) copyWithCollisions(docstore storage.Driver, data []byte,
	resolution resolver.Resolution, observed *database.FileRecord, result *FileResult) error {

	folder := resolution.FolderPath()

	for n := 1; n <= maxCollisionVariants; n++ {
		filename := resolution.Filename
		if n > 1 {
			filename = resolver.CollisionVariant(resolution.Filename, n)
		}
		target := storage.NormalizePath(path.Join(folder, filename))

		claimed, err := s.claimTarget(docstore, data, target, observed, result)
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}
	}

	return apperrors.NewByCode(apperrors.ErrStorageConflict).
		WithDetails("collision variants exhausted in folder " + folder)
}

// claimTarget 尝试将文档落位到指定目标路径
// 同一目标的存在性检查与写入全程持锁，并发归档到同名目标的文档互相串行，
// 谁先落位谁占住目标，后来者换冲突变体重试。
// 返回:
//   - bool: 是否已落位或复用目标，false 表示目标被不同内容占据
func (s *filingService) claimTarget(docstore storage.Driver, data []byte, target string,
	observed *database.FileRecord, result *FileResult) (bool, error) {

	targetURI := storage.MakeURI(docstore, target)

	lock := s.destLock(targetURI)
	lock.Lock()
	defer lock.Unlock()

	exists, err := docstore.FileExists(target)
	if err != nil {
		return false, err
	}

	if exists {
		// 先查缓存占用者，避免读取大文件；缓存未命中时退回内容比对
		occupant, err := s.cache.FindByDestination(targetURI)
		if err != nil {
			return false, err
		}
		if occupant != nil && occupant.Hash != observed.Hash {
			return false, nil
		}
		if occupant == nil {
			destData, err := docstore.ReadFile(target)
			if err != nil {
				return false, err
			}
			if cache.HashBytes(destData) != observed.Hash {
				return false, nil
			}
		}

		// 同内容已在目标位置
		observed.Filed = true
		observed.DestinationURI = targetURI
		result.Disposition = database.DispositionSkipped
		result.Reason = "content already at destination"
		return true, nil
	}

	if err := docstore.WriteFile(target, data); err != nil {
		return false, err
	}
	written, err := docstore.FileExists(target)
	if err != nil {
		return false, err
	}
	if !written {
		return false, apperrors.NewByCode(apperrors.ErrStorageWriteFailed).
			WithDetails("destination missing after write: " + target)
	}

	observed.Filed = true
	observed.DestinationURI = targetURI
	result.Disposition = database.DispositionFiled
	result.Reason = "filed to " + target
	logger.Infof("[归档服务] 文档归档完成: %s", docstore.DisplayPath(target))
	return true, nil
}

// LoadLayout 从归档库读取并解析布局文件
func (s *filingService) LoadLayout(docstore storage.Driver) (*layout.Tree, error) {
	data, err := docstore.ReadFile(s.cfg.Docstore.LayoutFile)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperrors.NewByCode(apperrors.ErrLayoutNotFound).
				WithDetails(s.cfg.Docstore.LayoutFile)
		}
		return nil, err
	}

	tree, err := layout.Parse(string(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLayoutParseFailed, "布局文件解析失败", err)
	}
	return tree, nil
}

// ActiveWorkflow 返回当前执行中的工作流类型
func (s *filingService) ActiveWorkflow() string {
	return s.guard.current()
}

// copyClassification 将已有记录中的分类结果复制到观察记录
func copyClassification(observed *database.FileRecord, existing *database.FileRecord) {
	observed.Title = existing.Title
	observed.SuggestedPath = existing.SuggestedPath
	observed.Confidence = existing.Confidence
	observed.ReportingYear = existing.ReportingYear
	observed.DocDate = existing.DocDate
	observed.Entity = existing.Entity
	observed.Summary = existing.Summary
}

// inSystemFolder 判断路径是否位于以 -- 开头的系统目录下
// 系统目录（重复隔离、摄取日志等）不参与扫描与修复
func inSystemFolder(relPath string) bool {
	for _, segment := range splitSlashPath(relPath) {
		if strings.HasPrefix(segment, "--") {
			return true
		}
	}
	return false
}

// sameStoreAs 判断位置是否位于指定驱动的存储内
func sameStoreAs(loc storage.Location, d storage.Driver) bool {
	return loc.Backend == d.Backend() && loc.StoreID == d.StoreID()
}

// isFatal 判断错误是否必须中止整个运行
func isFatal(err error) bool {
	appErr, ok := apperrors.GetAppError(err)
	return ok && appErr.Code == apperrors.ErrCacheCorrupted
}

// splitSlashPath 拆分斜杠分隔的路径，忽略空段
func splitSlashPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// findLayoutChild 在布局节点列表中按名称查找，不区分大小写
func findLayoutChild(nodes []*layout.Node, name string) *layout.Node {
	for _, node := range nodes {
		if strings.EqualFold(node.Name, name) {
			return node
		}
	}
	return nil
}
