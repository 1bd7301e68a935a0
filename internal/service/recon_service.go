// 本文件实现了归档对账服务，负责归档库与元数据缓存之间的一致性维护
// 主要功能包括：
// - 校验：核对已归档记录的目标副本是否仍然在位，失踪时从来源重新复制
// - 修复：扫描归档库实际内容，修正缓存中缺失或过期的归档位置
// - 去重：识别同一公司分裂出的多个目录并合并
package service

import (
	"context"
	"path"
	"strings"

	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/cache"
	"github.com/weiwangfds/docfiler/internal/classify"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/resolver"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// 单个公司目录下的去重合并轮次上限
const maxDedupRounds = 10

// ReconService 归档对账服务接口
type ReconService interface {
	// Verify 校验全部已归档记录
	// 逐条核对记录中的归档位置，副本失踪时尝试从来源位置重新复制，
	// 来源同样不可用时标记为需人工处理
	Verify(ctx context.Context) (*database.FilingRun, error)

	// Repair 扫描归档库并修复元数据缓存
	// 功能:
	//   - 归档库中存在而缓存中缺失的文档补建记录
	//   - 缓存记录的归档位置与实际位置不符时修正
	//   - 同一内容在归档库中出现多份时按建议路径裁决，多余副本移入隔离目录
	Repair(ctx context.Context) (*database.FilingRun, error)

	// Deduplicate 合并拼写分裂的公司目录
	// 对布局中每个按公司目录的父目录，由分类器识别指向同一公司的目录对，
	// 将文件较少一方的内容并入较多一方并同步更新缓存中的归档位置
	Deduplicate(ctx context.Context) (*database.FilingRun, error)
}

// reconService 归档对账服务实现
type reconService struct {
	db         *gorm.DB
	cache      cache.MetadataCache
	storageSvc StorageConfigService
	classifier classify.Classifier
	filing     FilingService
	cfg        *config.Config
	guard      *RunGuard
}

// NewReconService 创建归档对账服务实例
func NewReconService(db *gorm.DB, metaCache cache.MetadataCache, storageSvc StorageConfigService,
	classifier classify.Classifier, filing FilingService, cfg *config.Config, guard *RunGuard) ReconService {
	return &reconService{
		db:         db,
		cache:      metaCache,
		storageSvc: storageSvc,
		classifier: classifier,
		filing:     filing,
		cfg:        cfg,
		guard:      guard,
	}
}

// Verify 校验全部已归档记录
func (s *reconService) Verify(ctx context.Context) (*database.FilingRun, error) {
	if err := s.guard.acquire(database.RunTypeVerify); err != nil {
		return nil, err
	}
	defer s.guard.release()

	recorder, err := startRun(s.db, database.RunTypeVerify)
	if err != nil {
		return nil, err
	}

	docstore, err := s.storageSvc.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		return recorder.finish(err), err
	}

	err = s.cache.All(func(record database.FileRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !record.Filed || record.DestinationURI == "" {
			return nil
		}
		s.verifyRecord(docstore, record, recorder)
		return nil
	})

	return recorder.finish(err), err
}

// verifyRecord 校验单条已归档记录
func (s *reconService) verifyRecord(docstore storage.Driver, record database.FileRecord, recorder *runRecorder) {
	destLoc, ok := storage.ParseLocation(record.DestinationURI)
	if !ok {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionManual, "destination uri is malformed")
		return
	}
	if !sameStoreAs(destLoc, docstore) {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionManual, "destination is not in the active docstore")
		return
	}

	exists, err := docstore.FileExists(destLoc.RelPath)
	if err != nil {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionFailed, err.Error())
		return
	}
	if exists {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionSkipped, "destination verified")
		return
	}

	// 副本确已失踪，先清除归档标志再尝试找回
	// 找回中途崩溃时标志如实反映未归档状态，下次运行会继续处理
	if err := s.clearFiled(record.Hash); err != nil {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionFailed, err.Error())
		return
	}

	data, found := s.readFromSource(docstore, record)
	if !found {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionManual, "destination missing and source unavailable")
		return
	}
	if cache.HashBytes(data) != record.Hash {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionManual, "source content no longer matches record")
		return
	}

	if err := docstore.WriteFile(destLoc.RelPath, data); err != nil {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionFailed, err.Error())
		return
	}
	if _, err := s.cache.Upsert(database.FileRecord{
		Hash:           record.Hash,
		DestinationURI: record.DestinationURI,
		Filed:          true,
	}); err != nil {
		recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
			database.DispositionFailed, err.Error())
		return
	}
	logger.Infof("[对账服务] 失踪副本已找回: %s", destLoc.RelPath)
	recorder.record(record.Hash, record.SourceURI, record.DestinationURI,
		database.DispositionRepaired, "destination re-copied from source")
}

// clearFiled 清除记录的归档标志
// 归档标志在合并规则中只进不退，此处绕过合并直接落库
func (s *reconService) clearFiled(hash string) error {
	err := s.db.Model(&database.FileRecord{}).
		Where("hash = ?", hash).
		Update("filed", false).Error
	if err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return nil
}

// readFromSource 尝试从记录的来源位置读取文档内容
func (s *reconService) readFromSource(docstore storage.Driver, record database.FileRecord) ([]byte, bool) {
	srcLoc, ok := storage.ParseLocation(record.SourceURI)
	if !ok {
		return nil, false
	}

	var driver storage.Driver
	if sameStoreAs(srcLoc, docstore) {
		driver = docstore
	} else {
		inbox, err := s.storageSvc.GetActiveDriver(database.StorageRoleInbox)
		if err != nil || !sameStoreAs(srcLoc, inbox) {
			return nil, false
		}
		driver = inbox
	}

	data, err := driver.ReadFile(srcLoc.RelPath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Repair 扫描归档库并修复元数据缓存
func (s *reconService) Repair(ctx context.Context) (*database.FilingRun, error) {
	if err := s.guard.acquire(database.RunTypeRepair); err != nil {
		return nil, err
	}
	defer s.guard.release()

	recorder, err := startRun(s.db, database.RunTypeRepair)
	if err != nil {
		return nil, err
	}

	docstore, err := s.storageSvc.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		return recorder.finish(err), err
	}

	files, err := docstore.ListFiles("", true, s.cfg.File.Extensions)
	if err != nil {
		return recorder.finish(err), err
	}
	logger.Infof("[对账服务] 归档库修复扫描开始，文档数: %d", len(files))

	for _, info := range files {
		if err := ctx.Err(); err != nil {
			return recorder.finish(err), err
		}
		if inSystemFolder(info.Path) {
			continue
		}
		if err := s.repairFile(docstore, info, recorder); err != nil {
			return recorder.finish(err), err
		}
	}

	return recorder.finish(nil), nil
}

// repairFile 修复单个归档库文档的缓存记录
func (s *reconService) repairFile(docstore storage.Driver, info storage.FileInfo, recorder *runRecorder) error {
	data, err := docstore.ReadFile(info.Path)
	if err != nil {
		recorder.record("", storage.MakeURI(docstore, info.Path), "",
			database.DispositionFailed, err.Error())
		return nil
	}

	hash := cache.HashBytes(data)
	scanURI := storage.MakeURI(docstore, info.Path)

	record, err := s.cache.Get(hash)
	if err != nil {
		if isFatal(err) {
			return err
		}
		recorder.record(hash, scanURI, "", database.DispositionFailed, err.Error())
		return nil
	}

	// 缓存中没有记录：补建记录，归档位置即当前位置
	if record == nil {
		if _, err := s.cache.Upsert(database.FileRecord{
			Hash:           hash,
			SourceURI:      scanURI,
			DestinationURI: scanURI,
			Filed:          true,
		}); err != nil {
			if isFatal(err) {
				return err
			}
			recorder.record(hash, scanURI, "", database.DispositionFailed, err.Error())
			return nil
		}
		recorder.record(hash, scanURI, scanURI, database.DispositionRepaired, "cache record created")
		return nil
	}

	// 记录没有归档位置：以当前位置补全
	if record.DestinationURI == "" {
		if err := s.updateDestination(hash, scanURI, recorder, "destination recorded"); err != nil {
			return err
		}
		return nil
	}

	// 记录位置与当前位置一致：确保归档标志在位
	if record.DestinationURI == scanURI {
		if !record.Filed {
			if err := s.updateDestination(hash, scanURI, recorder, "filed flag restored"); err != nil {
				return err
			}
			return nil
		}
		recorder.record(hash, scanURI, scanURI, database.DispositionSkipped, "record consistent")
		return nil
	}

	// 记录位置与当前位置不一致
	recordedLoc, ok := storage.ParseLocation(record.DestinationURI)
	if ok && sameStoreAs(recordedLoc, docstore) {
		exists, err := docstore.FileExists(recordedLoc.RelPath)
		if err != nil {
			recorder.record(hash, scanURI, record.DestinationURI, database.DispositionFailed, err.Error())
			return nil
		}
		if exists {
			// 同一内容出现两份，按建议路径裁决保留哪一份
			return s.arbitrateDuplicate(docstore, *record, info.Path, recordedLoc.RelPath, recorder)
		}
	}

	// 记录的位置已失踪，修正为当前位置
	return s.updateDestination(hash, scanURI, recorder, "destination updated to actual location")
}

// arbitrateDuplicate 裁决同一内容的两份归档副本
// 保留所在目录与建议路径解析结果一致的一份，另一份移入隔离目录；
// 两份都不在预期目录时标记为需人工处理
func (s *reconService) arbitrateDuplicate(docstore storage.Driver, record database.FileRecord,
	scanPath, recordedPath string, recorder *runRecorder) error {

	scanURI := storage.MakeURI(docstore, scanPath)
	expectedFolder := ""
	if record.Classified() {
		if tree, err := s.filing.LoadLayout(docstore); err == nil {
			if resolution, err := resolver.Resolve(record, tree); err == nil {
				expectedFolder = resolution.FolderPath()
			}
		}
	}

	scanFolder := folderOf(scanPath)
	recordedFolder := folderOf(recordedPath)

	switch {
	case expectedFolder != "" && strings.EqualFold(scanFolder, expectedFolder):
		// 当前副本在预期目录，记录中的旧副本移入隔离目录
		if _, err := docstore.Move(recordedPath, s.cfg.File.DuplicatesFolder); err != nil {
			recorder.record(record.Hash, scanURI, record.DestinationURI,
				database.DispositionFailed, err.Error())
			return nil
		}
		logger.Infof("[对账服务] 多余副本移入隔离目录: %s", recordedPath)
		if err := s.updateDestination(record.Hash, scanURI, recorder,
			"kept copy at expected folder, extra copy quarantined"); err != nil {
			return err
		}
		return nil

	case expectedFolder != "" && strings.EqualFold(recordedFolder, expectedFolder):
		// 记录中的副本在预期目录，当前副本移入隔离目录
		if _, err := docstore.Move(scanPath, s.cfg.File.DuplicatesFolder); err != nil {
			recorder.record(record.Hash, scanURI, record.DestinationURI,
				database.DispositionFailed, err.Error())
			return nil
		}
		logger.Infof("[对账服务] 多余副本移入隔离目录: %s", scanPath)
		recorder.record(record.Hash, scanURI, record.DestinationURI,
			database.DispositionDuplicate, "extra copy quarantined, recorded destination kept")
		return nil

	default:
		recorder.record(record.Hash, scanURI, record.DestinationURI,
			database.DispositionManual, "duplicate copies, neither at expected folder")
		return nil
	}
}

// updateDestination 将记录的归档位置修正为指定URI
func (s *reconService) updateDestination(hash, destURI string, recorder *runRecorder, reason string) error {
	if _, err := s.cache.Upsert(database.FileRecord{
		Hash:           hash,
		DestinationURI: destURI,
		Filed:          true,
	}); err != nil {
		if isFatal(err) {
			return err
		}
		recorder.record(hash, "", destURI, database.DispositionFailed, err.Error())
		return nil
	}
	recorder.record(hash, "", destURI, database.DispositionRepaired, reason)
	return nil
}

// Deduplicate 合并拼写分裂的公司目录
func (s *reconService) Deduplicate(ctx context.Context) (*database.FilingRun, error) {
	if err := s.guard.acquire(database.RunTypeDeduplicate); err != nil {
		return nil, err
	}
	defer s.guard.release()

	recorder, err := startRun(s.db, database.RunTypeDeduplicate)
	if err != nil {
		return nil, err
	}

	docstore, err := s.storageSvc.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		return recorder.finish(err), err
	}

	tree, err := s.filing.LoadLayout(docstore)
	if err != nil {
		return recorder.finish(err), err
	}

	for _, parentPath := range tree.ByCompanyPaths() {
		if err := ctx.Err(); err != nil {
			return recorder.finish(err), err
		}
		if err := s.dedupParent(ctx, docstore, parentPath, recorder); err != nil {
			return recorder.finish(err), err
		}
	}

	return recorder.finish(nil), nil
}

// dedupParent 在单个按公司父目录下循环识别并合并重复目录
func (s *reconService) dedupParent(ctx context.Context, docstore storage.Driver,
	parentPath string, recorder *runRecorder) error {

	folders, err := docstore.ListFolders(parentPath)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		logger.Warnf("[对账服务] 列举公司目录失败 %s: %v", parentPath, err)
		return nil
	}

	for round := 0; round < maxDedupRounds && len(folders) >= 2; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		first, second, found, err := s.classifier.FindDuplicatePair(ctx, folders)
		if err != nil {
			logger.Warnf("[对账服务] 重复目录识别失败 %s: %v", parentPath, err)
			return nil
		}
		if !found {
			return nil
		}

		keeper, loser := s.pickKeeper(docstore, parentPath, first, second)
		logger.Infof("[对账服务] 合并公司目录: %s/%s -> %s/%s", parentPath, loser, parentPath, keeper)

		if err := s.mergeFolder(docstore, parentPath, loser, keeper, recorder); err != nil {
			return err
		}

		folders = removeName(folders, loser)
	}
	return nil
}

// pickKeeper 在一对重复目录中选择保留方，文件较多的一方胜出
func (s *reconService) pickKeeper(docstore storage.Driver, parentPath, first, second string) (string, string) {
	firstCount := s.countFiles(docstore, parentPath+"/"+first)
	secondCount := s.countFiles(docstore, parentPath+"/"+second)
	if secondCount > firstCount {
		return second, first
	}
	return first, second
}

// countFiles 统计目录下的文件数（递归）
func (s *reconService) countFiles(docstore storage.Driver, folder string) int {
	files, err := docstore.ListFiles(folder, true, nil)
	if err != nil {
		return 0
	}
	return len(files)
}

// mergeFolder 将 loser 目录中的全部文件并入 keeper 目录并同步缓存
// keeper 中已有同名文件时该文件改入隔离目录
func (s *reconService) mergeFolder(docstore storage.Driver, parentPath, loser, keeper string,
	recorder *runRecorder) error {

	loserPath := parentPath + "/" + loser
	keeperPath := parentPath + "/" + keeper

	files, err := docstore.ListFiles(loserPath, true, nil)
	if err != nil {
		logger.Warnf("[对账服务] 列举目录文件失败 %s: %v", loserPath, err)
		return nil
	}

	for _, info := range files {
		oldURI := storage.MakeURI(docstore, info.Path)

		destFolder := keeperPath
		taken, err := docstore.FileExists(keeperPath + "/" + info.Name)
		if err == nil && taken {
			destFolder = s.cfg.File.DuplicatesFolder
		}

		newRel, err := docstore.Move(info.Path, destFolder)
		if err != nil {
			recorder.record("", oldURI, "", database.DispositionFailed, err.Error())
			continue
		}
		newURI := storage.MakeURI(docstore, newRel)

		// 同步缓存中的归档位置
		record, err := s.cache.FindByDestination(oldURI)
		if err == nil && record != nil {
			if _, err := s.cache.Upsert(database.FileRecord{
				Hash:           record.Hash,
				DestinationURI: newURI,
				Filed:          true,
			}); err != nil && isFatal(err) {
				return err
			}
			recorder.record(record.Hash, oldURI, newURI, database.DispositionMoved,
				"company folder merged: "+loser+" -> "+keeper)
		} else {
			recorder.record("", oldURI, newURI, database.DispositionMoved,
				"company folder merged: "+loser+" -> "+keeper)
		}
	}

	// 空目录清理仅对本地后端有意义，失败不影响合并结果
	if err := docstore.Delete(loserPath); err != nil {
		logger.Debugf("[对账服务] 清理空目录失败 %s: %v", loserPath, err)
	}
	return nil
}

// folderOf 返回相对路径所在目录
func folderOf(relPath string) string {
	dir := path.Dir(storage.NormalizePath(relPath))
	if dir == "." {
		return ""
	}
	return dir
}

// removeName 从名称列表中移除指定项
func removeName(names []string, target string) []string {
	var out []string
	for _, name := range names {
		if name != target {
			out = append(out, name)
		}
	}
	return out
}
