// Package service 提供归档引擎的业务服务实现
// 本文件实现了存储配置管理服务，负责归档库与收件箱后端配置的增删改查和状态管理
package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// StorageConfigService 存储配置服务接口
// 定义了存储配置管理的所有操作，包括配置的增删改查、按角色的激活状态管理和连接测试
type StorageConfigService interface {
	// CreateConfig 创建存储配置
	// 验证配置参数并保存到数据库，角色下第一个配置会自动激活
	CreateConfig(cfg *database.StorageConfig) error

	// GetConfigByID 根据ID获取存储配置
	GetConfigByID(id uint) (*database.StorageConfig, error)

	// ListConfigs 获取所有存储配置，按创建时间倒序排列
	ListConfigs() ([]database.StorageConfig, error)

	// UpdateConfig 更新存储配置
	// 验证并更新指定的存储配置，处理激活状态变更
	UpdateConfig(cfg *database.StorageConfig) error

	// DeleteConfig 删除指定ID的存储配置，不允许删除激活状态的配置
	DeleteConfig(id uint) error

	// ActivateConfig 激活指定配置并取消同角色其他配置的激活状态
	// 每个角色同一时间只有一个激活配置
	ActivateConfig(id uint) error

	// ToggleConfig 启用/禁用存储配置，不允许禁用激活状态的配置
	ToggleConfig(id uint, enabled bool) error

	// TestConfig 使用指定配置创建存储驱动并测试连通性
	TestConfig(id uint) error

	// GetActiveConfig 获取指定角色当前激活且启用的配置
	GetActiveConfig(role string) (*database.StorageConfig, error)

	// GetActiveDriver 获取指定角色当前激活配置对应的存储驱动实例
	GetActiveDriver(role string) (storage.Driver, error)

	// EnsureDefaults 根据应用配置补种默认存储配置
	// 角色下没有任何配置时，从配置文件的位置URI生成一条激活配置
	EnsureDefaults(cfg *config.Config) error
}

// storageConfigService 存储配置服务实现
type storageConfigService struct {
	db      *gorm.DB               // 数据库连接实例
	factory *storage.DriverFactory // 存储驱动工厂，用于创建不同后端的驱动
}

// NewStorageConfigService 创建存储配置服务实例
// 参数:
//   - db: GORM数据库连接实例
// 返回:
//   - StorageConfigService: 存储配置服务接口实现
func NewStorageConfigService(db *gorm.DB) StorageConfigService {
	return &storageConfigService{
		db:      db,
		factory: &storage.DriverFactory{},
	}
}

// CreateConfig 创建存储配置
func (s *storageConfigService) CreateConfig(cfg *database.StorageConfig) error {
	logger.Infof("[存储配置] 创建配置: %s (角色: %s, 后端: %s, 存储: %s)",
		cfg.Name, cfg.Role, cfg.Backend, cfg.StoreID)

	if err := s.validateConfig(cfg); err != nil {
		logger.Warnf("[存储配置] 配置校验失败 %s: %v", cfg.Name, err)
		return err
	}

	// 角色下第一个配置自动设为激活状态
	var count int64
	s.db.Model(&database.StorageConfig{}).Where("role = ?", cfg.Role).Count(&count)
	if count == 0 {
		cfg.IsActive = true
		logger.Infof("[存储配置] 角色 %s 的首个配置自动激活: %s", cfg.Role, cfg.Name)
	}

	if cfg.IsActive {
		if err := s.deactivateRole(cfg.Role); err != nil {
			return err
		}
	}

	if err := s.db.Create(cfg).Error; err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	logger.Infof("[存储配置] 配置创建成功: %s (ID: %d, 激活: %v)", cfg.Name, cfg.ID, cfg.IsActive)
	return nil
}

// GetConfigByID 根据ID获取存储配置
func (s *storageConfigService) GetConfigByID(id uint) (*database.StorageConfig, error) {
	var cfg database.StorageConfig
	if err := s.db.First(&cfg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewByCode(apperrors.ErrStorageConfigNotFound)
		}
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return &cfg, nil
}

// ListConfigs 获取所有存储配置
func (s *storageConfigService) ListConfigs() ([]database.StorageConfig, error) {
	var configs []database.StorageConfig
	if err := s.db.Order("created_at DESC").Find(&configs).Error; err != nil {
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return configs, nil
}

// UpdateConfig 更新存储配置
func (s *storageConfigService) UpdateConfig(cfg *database.StorageConfig) error {
	existing, err := s.GetConfigByID(cfg.ID)
	if err != nil {
		return err
	}

	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	// 激活状态从关到开时，先取消同角色其他配置
	if cfg.IsActive && !existing.IsActive {
		if err := s.deactivateRole(cfg.Role); err != nil {
			return err
		}
	}

	if err := s.db.Save(cfg).Error; err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	logger.Infof("[存储配置] 配置更新成功: %s (ID: %d)", cfg.Name, cfg.ID)
	return nil
}

// DeleteConfig 删除存储配置
func (s *storageConfigService) DeleteConfig(id uint) error {
	cfg, err := s.GetConfigByID(id)
	if err != nil {
		return err
	}

	if cfg.IsActive {
		return apperrors.NewByCode(apperrors.ErrInvalidParams).
			WithDetails("cannot delete an active storage config")
	}

	if err := s.db.Delete(cfg).Error; err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	logger.Infof("[存储配置] 配置删除成功: %s (ID: %d)", cfg.Name, id)
	return nil
}

// ActivateConfig 激活存储配置
func (s *storageConfigService) ActivateConfig(id uint) error {
	cfg, err := s.GetConfigByID(id)
	if err != nil {
		return err
	}

	if !cfg.IsEnabled {
		return apperrors.NewByCode(apperrors.ErrInvalidParams).
			WithDetails("cannot activate a disabled storage config")
	}

	if err := s.deactivateRole(cfg.Role); err != nil {
		return err
	}

	if err := s.db.Model(cfg).Update("is_active", true).Error; err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	logger.Infof("[存储配置] 配置已激活: %s (角色: %s)", cfg.Name, cfg.Role)
	return nil
}

// ToggleConfig 启用/禁用存储配置
func (s *storageConfigService) ToggleConfig(id uint, enabled bool) error {
	cfg, err := s.GetConfigByID(id)
	if err != nil {
		return err
	}

	if !enabled && cfg.IsActive {
		return apperrors.NewByCode(apperrors.ErrInvalidParams).
			WithDetails("cannot disable an active storage config")
	}

	if err := s.db.Model(cfg).Update("is_enabled", enabled).Error; err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}

	logger.Infof("[存储配置] 配置状态变更: %s (启用: %v)", cfg.Name, enabled)
	return nil
}

// TestConfig 测试存储配置连通性
func (s *storageConfigService) TestConfig(id uint) error {
	cfg, err := s.GetConfigByID(id)
	if err != nil {
		return err
	}

	driver, err := s.factory.CreateDriver(cfg)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageConfigInvalid, "创建存储驱动失败", err)
	}

	if err := driver.TestConnection(); err != nil {
		logger.Warnf("[存储配置] 连接测试失败 %s: %v", cfg.Name, err)
		return apperrors.Wrap(apperrors.ErrStorageConnectionFailed, "存储连接测试失败", err)
	}

	logger.Infof("[存储配置] 连接测试通过: %s", cfg.Name)
	return nil
}

// GetActiveConfig 获取指定角色当前激活的配置
func (s *storageConfigService) GetActiveConfig(role string) (*database.StorageConfig, error) {
	var cfg database.StorageConfig
	err := s.db.Where("role = ? AND is_active = ? AND is_enabled = ?", role, true, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewByCode(apperrors.ErrStorageConfigNotFound).WithDetails(role)
		}
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return &cfg, nil
}

// GetActiveDriver 获取指定角色的激活存储驱动
func (s *storageConfigService) GetActiveDriver(role string) (storage.Driver, error) {
	cfg, err := s.GetActiveConfig(role)
	if err != nil {
		return nil, err
	}
	driver, err := s.factory.CreateDriver(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageConfigInvalid, "创建存储驱动失败", err)
	}
	return driver, nil
}

// EnsureDefaults 根据应用配置补种默认存储配置
func (s *storageConfigService) EnsureDefaults(cfg *config.Config) error {
	seeds := []struct {
		role string
		uri  string
	}{
		{database.StorageRoleDocstore, cfg.Docstore.URI},
		{database.StorageRoleInbox, cfg.Inbox.URI},
	}

	for _, seed := range seeds {
		var count int64
		if err := s.db.Model(&database.StorageConfig{}).
			Where("role = ?", seed.role).Count(&count).Error; err != nil {
			return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
		}
		if count > 0 {
			continue
		}

		loc, ok := storage.ParseLocation(seed.uri)
		if !ok {
			return apperrors.NewByCode(apperrors.ErrStorageURIInvalid).WithDetails(seed.uri)
		}

		seeded := &database.StorageConfig{
			Name:      "default-" + seed.role,
			Role:      seed.role,
			Backend:   loc.Backend,
			StoreID:   loc.StoreID,
			Prefix:    loc.RelPath,
			IsActive:  true,
			IsEnabled: true,
		}
		if err := s.db.Create(seeded).Error; err != nil {
			return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
		}
		logger.Infof("[存储配置] 已从应用配置补种默认配置: %s (%s)", seeded.Name, seed.uri)
	}
	return nil
}

// deactivateRole 取消指定角色下全部配置的激活状态
func (s *storageConfigService) deactivateRole(role string) error {
	err := s.db.Model(&database.StorageConfig{}).
		Where("role = ? AND is_active = ?", role, true).
		Update("is_active", false).Error
	if err != nil {
		return apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	return nil
}

// validateConfig 校验存储配置参数
func (s *storageConfigService) validateConfig(cfg *database.StorageConfig) error {
	if cfg.Name == "" {
		return apperrors.NewByCode(apperrors.ErrInvalidParams).WithDetails("config name is required")
	}
	if cfg.Role != database.StorageRoleDocstore && cfg.Role != database.StorageRoleInbox {
		return apperrors.NewByCode(apperrors.ErrInvalidParams).WithDetails("unknown role: " + cfg.Role)
	}
	if cfg.StoreID == "" {
		return apperrors.NewByCode(apperrors.ErrInvalidParams).WithDetails("store id is required")
	}
	switch cfg.Backend {
	case storage.BackendLocal:
	case storage.BackendAliyun, storage.BackendTencent, storage.BackendQiniu:
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return apperrors.NewByCode(apperrors.ErrStorageConfigInvalid).
				WithDetails("cloud backend requires access key and secret key")
		}
	default:
		return apperrors.NewByCode(apperrors.ErrStorageBackendNotSupported).WithDetails(cfg.Backend)
	}
	return nil
}
