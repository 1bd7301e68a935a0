// 本文件实现了归档报表服务，提供元数据记录与运行日志的查询能力
package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/internal/cache"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
)

// CacheStats 元数据缓存统计
type CacheStats struct {
	Total      int64 `json:"total"`      // 记录总数
	Filed      int64 `json:"filed"`      // 已归档记录数
	Classified int64 `json:"classified"` // 已分类记录数
}

// ReportService 归档报表服务接口
type ReportService interface {
	// ListRecords 分页查询元数据记录，按更新时间倒序
	ListRecords(page, pageSize int) ([]database.FileRecord, int64, error)

	// GetRecord 按内容哈希查询单条记录
	GetRecord(hash string) (*database.FileRecord, error)

	// Stats 返回元数据缓存统计
	Stats() (*CacheStats, error)

	// ListRuns 分页查询工作流运行记录，按开始时间倒序
	ListRuns(page, pageSize int) ([]database.FilingRun, int64, error)

	// GetRun 查询单次运行及其全部处置明细
	GetRun(runID string) (*database.FilingRun, []database.FilingEntry, error)
}

// reportService 归档报表服务实现
type reportService struct {
	db    *gorm.DB
	cache cache.MetadataCache
}

// NewReportService 创建归档报表服务实例
func NewReportService(db *gorm.DB, metaCache cache.MetadataCache) ReportService {
	return &reportService{db: db, cache: metaCache}
}

// ListRecords 分页查询元数据记录
func (s *reportService) ListRecords(page, pageSize int) ([]database.FileRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var total int64
	if err := s.db.Model(&database.FileRecord{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	var records []database.FileRecord
	err := s.db.Order("updated_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return records, total, nil
}

// GetRecord 按内容哈希查询单条记录
func (s *reportService) GetRecord(hash string) (*database.FileRecord, error) {
	record, err := s.cache.Get(hash)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.NewByCode(apperrors.ErrRecordNotFound).WithDetails(hash)
	}
	return record, nil
}

// Stats 返回元数据缓存统计
func (s *reportService) Stats() (*CacheStats, error) {
	stats := &CacheStats{}

	if err := s.db.Model(&database.FileRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	if err := s.db.Model(&database.FileRecord{}).
		Where("filed = ?", true).Count(&stats.Filed).Error; err != nil {
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	if err := s.db.Model(&database.FileRecord{}).
		Where("title <> '' AND suggested_path <> ''").Count(&stats.Classified).Error; err != nil {
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return stats, nil
}

// ListRuns 分页查询工作流运行记录
func (s *reportService) ListRuns(page, pageSize int) ([]database.FilingRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var total int64
	if err := s.db.Model(&database.FilingRun{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	var runs []database.FilingRun
	err := s.db.Order("started_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&runs).Error
	if err != nil {
		return nil, 0, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return runs, total, nil
}

// GetRun 查询单次运行及其全部处置明细
func (s *reportService) GetRun(runID string) (*database.FilingRun, []database.FilingEntry, error) {
	var run database.FilingRun
	if err := s.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NewByCode(apperrors.ErrNotFound).WithDetails(runID)
		}
		return nil, nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	var entries []database.FilingEntry
	if err := s.db.Where("run_id = ?", runID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return &run, entries, nil
}
