// Package cache 提供以内容哈希为键的文件元数据缓存
// 缓存是归档状态的事实来源，底层为SQLite（WAL模式）持久化
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
)

// MetadataCache 文件元数据缓存服务接口
type MetadataCache interface {
	// Get 按内容哈希读取记录，记录不存在时返回 (nil, nil)
	Get(hash string) (*database.FileRecord, error)

	// Upsert 合并写入一条元数据记录
	// 已存在同哈希记录时按合并规则合并后落库，否则直接插入
	// 返回落库后的记录
	Upsert(record database.FileRecord) (*database.FileRecord, error)

	// All 批量遍历全部记录，回调返回错误时中止遍历
	All(fn func(record database.FileRecord) error) error

	// FindByDestination 按归档目标URI查找记录，不存在时返回 (nil, nil)
	FindByDestination(uri string) (*database.FileRecord, error)

	// Count 返回记录总数
	Count() (int64, error)
}

// metadataCache 元数据缓存服务实现
type metadataCache struct {
	db *gorm.DB

	// 按哈希分键的互斥锁，保证同一内容的读-合并-写原子性
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMetadataCache 创建元数据缓存服务实例
func NewMetadataCache(db *gorm.DB) MetadataCache {
	return &metadataCache{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// hashLock 获取指定哈希的互斥锁
func (c *metadataCache) hashLock(hash string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[hash]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[hash] = lock
	}
	return lock
}

// Get 按内容哈希读取记录
func (c *metadataCache) Get(hash string) (*database.FileRecord, error) {
	if !ValidHash(hash) {
		return nil, apperrors.NewByCode(apperrors.ErrCacheHashMismatch).WithDetails(hash)
	}

	var record database.FileRecord
	err := c.db.Where("hash = ?", hash).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	if err := checkIntegrity(&record, hash); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert 合并写入一条元数据记录
func (c *metadataCache) Upsert(record database.FileRecord) (*database.FileRecord, error) {
	if !ValidHash(record.Hash) {
		return nil, apperrors.NewByCode(apperrors.ErrCacheHashMismatch).WithDetails(record.Hash)
	}
	if record.ObservedAt.IsZero() {
		record.ObservedAt = time.Now()
	}

	lock := c.hashLock(record.Hash)
	lock.Lock()
	defer lock.Unlock()

	var result *database.FileRecord
	err := c.db.Transaction(func(tx *gorm.DB) error {
		var existing database.FileRecord
		err := tx.Where("hash = ?", record.Hash).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&record).Error; err != nil {
				return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
			}
			result = &record
			return nil
		case err != nil:
			return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
		}

		if err := checkIntegrity(&existing, record.Hash); err != nil {
			return err
		}

		merged, err := existing.Merge(record)
		if err != nil {
			return err
		}
		merged.ID = existing.ID
		merged.CreatedAt = existing.CreatedAt
		if err := tx.Save(&merged).Error; err != nil {
			return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
		}
		result = &merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debugf("[元数据缓存] 写入记录 hash=%s filed=%v dest=%s",
		shortHash(result.Hash), result.Filed, result.DestinationURI)
	return result, nil
}

// All 批量遍历全部记录
func (c *metadataCache) All(fn func(record database.FileRecord) error) error {
	var batch []database.FileRecord
	result := c.db.FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
		for _, record := range batch {
			if err := checkIntegrity(&record, record.Hash); err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	})
	if result.Error != nil {
		if apperrors.IsAppError(result.Error) {
			return result.Error
		}
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, result.Error)
	}
	return nil
}

// FindByDestination 按归档目标URI查找记录
func (c *metadataCache) FindByDestination(uri string) (*database.FileRecord, error) {
	if uri == "" {
		return nil, nil
	}
	var record database.FileRecord
	err := c.db.Where("destination_uri = ?", uri).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return &record, nil
}

// Count 返回记录总数
func (c *metadataCache) Count() (int64, error) {
	var count int64
	if err := c.db.Model(&database.FileRecord{}).Count(&count).Error; err != nil {
		return 0, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return count, nil
}

// checkIntegrity 校验记录完整性，哈希键损坏时返回缓存损坏错误
// 缓存损坏是致命错误，调用方必须中止当前运行
func checkIntegrity(record *database.FileRecord, expectedHash string) error {
	if !ValidHash(record.Hash) || record.Hash != expectedHash {
		return apperrors.NewByCode(apperrors.ErrCacheCorrupted).
			WithDetails("record id " + record.Hash)
	}
	return nil
}

// ValidHash 判断字符串是否为合法的SHA-256十六进制哈希
func ValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// HashBytes 计算字节内容的SHA-256哈希（十六进制小写）
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// shortHash 返回哈希前12位，用于日志输出
func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
