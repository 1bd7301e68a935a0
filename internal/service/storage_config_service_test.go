package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// setupServiceDB 设置测试数据库
func setupServiceDB(t *testing.T) *gorm.DB {
	// 使用内存SQLite数据库进行测试
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// 与生产一致限制单连接，内存库的并发访问串行化
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&database.FileRecord{},
		&database.StorageConfig{},
		&database.FilingRun{},
		&database.FilingEntry{},
	)
	require.NoError(t, err)

	return db
}

// localConfig 构造一条本地后端的测试配置
func localConfig(name, role, root string) *database.StorageConfig {
	return &database.StorageConfig{
		Name:      name,
		Role:      role,
		Backend:   storage.BackendLocal,
		StoreID:   root,
		IsEnabled: true,
	}
}

// TestStorageConfigCRUD 测试存储配置增删改查
func TestStorageConfigCRUD(t *testing.T) {
	svc := NewStorageConfigService(setupServiceDB(t))
	root := t.TempDir()

	first := localConfig("store-a", database.StorageRoleDocstore, root)
	second := localConfig("store-b", database.StorageRoleDocstore, root)

	t.Run("角色下首个配置自动激活", func(t *testing.T) {
		require.NoError(t, svc.CreateConfig(first))
		assert.True(t, first.IsActive)

		require.NoError(t, svc.CreateConfig(second))
		assert.False(t, second.IsActive)
	})

	t.Run("按ID查询", func(t *testing.T) {
		got, err := svc.GetConfigByID(first.ID)
		require.NoError(t, err)
		assert.Equal(t, "store-a", got.Name)

		_, err = svc.GetConfigByID(9999)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrStorageConfigNotFound, appErr.Code)
	})

	t.Run("列表查询", func(t *testing.T) {
		configs, err := svc.ListConfigs()
		require.NoError(t, err)
		assert.Len(t, configs, 2)
	})

	t.Run("激活互斥", func(t *testing.T) {
		require.NoError(t, svc.ActivateConfig(second.ID))

		active, err := svc.GetActiveConfig(database.StorageRoleDocstore)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)

		old, err := svc.GetConfigByID(first.ID)
		require.NoError(t, err)
		assert.False(t, old.IsActive)
	})

	t.Run("不允许删除激活配置", func(t *testing.T) {
		err := svc.DeleteConfig(second.ID)
		require.Error(t, err)

		require.NoError(t, svc.DeleteConfig(first.ID))
	})

	t.Run("不允许禁用激活配置", func(t *testing.T) {
		err := svc.ToggleConfig(second.ID, false)
		require.Error(t, err)
	})

	t.Run("禁用的配置不能激活", func(t *testing.T) {
		third := localConfig("store-c", database.StorageRoleDocstore, root)
		require.NoError(t, svc.CreateConfig(third))
		require.NoError(t, svc.ToggleConfig(third.ID, false))

		err := svc.ActivateConfig(third.ID)
		require.Error(t, err)
	})
}

// TestStorageConfigValidation 测试存储配置校验
func TestStorageConfigValidation(t *testing.T) {
	svc := NewStorageConfigService(setupServiceDB(t))
	root := t.TempDir()

	t.Run("未知角色", func(t *testing.T) {
		cfg := localConfig("bad-role", "archive", root)
		require.Error(t, svc.CreateConfig(cfg))
	})

	t.Run("未知后端", func(t *testing.T) {
		cfg := localConfig("bad-backend", database.StorageRoleDocstore, root)
		cfg.Backend = "ftp"
		err := svc.CreateConfig(cfg)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrStorageBackendNotSupported, appErr.Code)
	})

	t.Run("云端后端必须提供密钥", func(t *testing.T) {
		cfg := localConfig("cloud", database.StorageRoleDocstore, "my-bucket")
		cfg.Backend = storage.BackendAliyun
		err := svc.CreateConfig(cfg)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrStorageConfigInvalid, appErr.Code)
	})

	t.Run("名称必填", func(t *testing.T) {
		cfg := localConfig("", database.StorageRoleDocstore, root)
		require.Error(t, svc.CreateConfig(cfg))
	})
}

// TestEnsureDefaults 测试默认存储配置补种
func TestEnsureDefaults(t *testing.T) {
	svc := NewStorageConfigService(setupServiceDB(t))
	storeDir := t.TempDir()
	inboxDir := t.TempDir()

	cfg := &config.Config{
		Docstore: config.StoreConfig{URI: "local:" + storeDir + ":"},
		Inbox:    config.StoreConfig{URI: "local:" + inboxDir + ":"},
	}

	require.NoError(t, svc.EnsureDefaults(cfg))

	docstore, err := svc.GetActiveConfig(database.StorageRoleDocstore)
	require.NoError(t, err)
	assert.Equal(t, "default-docstore", docstore.Name)
	assert.Equal(t, storeDir, docstore.StoreID)

	inbox, err := svc.GetActiveConfig(database.StorageRoleInbox)
	require.NoError(t, err)
	assert.Equal(t, "default-inbox", inbox.Name)

	t.Run("已有配置时不重复补种", func(t *testing.T) {
		require.NoError(t, svc.EnsureDefaults(cfg))
		configs, err := svc.ListConfigs()
		require.NoError(t, err)
		assert.Len(t, configs, 2)
	})

	t.Run("补种后可获取驱动", func(t *testing.T) {
		driver, err := svc.GetActiveDriver(database.StorageRoleInbox)
		require.NoError(t, err)
		assert.Equal(t, storage.BackendLocal, driver.Backend())
	})
}
