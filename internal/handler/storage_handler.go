package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiwangfds/docfiler/internal/database"
	"github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/response"
	"github.com/weiwangfds/docfiler/internal/service"
)

// StorageHandler 存储配置处理器
type StorageHandler struct {
	storageService service.StorageConfigService
}

// NewStorageHandler 创建存储配置处理器实例
func NewStorageHandler(storageService service.StorageConfigService) *StorageHandler {
	return &StorageHandler{
		storageService: storageService,
	}
}

// CreateConfig 创建存储配置
// 支持本地文件系统、阿里云OSS、腾讯云COS、七牛云Kodo四种后端
func (h *StorageHandler) CreateConfig(c *gin.Context) {
	var cfg database.StorageConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.storageService.CreateConfig(&cfg); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.Error(c, int(errors.ErrStorageConfigInvalid), err.Error())
		}
		return
	}

	response.SuccessWithMessage(c, "存储配置创建成功", gin.H{
		"config": cfg,
	})
}

// GetConfig 根据配置ID获取存储配置详细信息
func (h *StorageHandler) GetConfig(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "配置ID无效")
		return
	}

	cfg, err := h.storageService.GetConfigByID(id)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.NotFound(c, "存储配置不存在")
		}
		return
	}

	response.Success(c, gin.H{
		"config": cfg,
	})
}

// ListConfigs 获取所有存储配置列表
func (h *StorageHandler) ListConfigs(c *gin.Context) {
	configs, err := h.storageService.ListConfigs()
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "获取存储配置列表失败")
		}
		return
	}

	response.Success(c, gin.H{
		"configs": configs,
		"total":   len(configs),
	})
}

// UpdateConfig 根据配置ID更新存储配置信息
func (h *StorageHandler) UpdateConfig(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "配置ID无效")
		return
	}

	var cfg database.StorageConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	cfg.ID = id
	if err := h.storageService.UpdateConfig(&cfg); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.Error(c, int(errors.ErrStorageConfigInvalid), err.Error())
		}
		return
	}

	response.SuccessWithMessage(c, "存储配置更新成功", gin.H{
		"config": cfg,
	})
}

// DeleteConfig 删除指定ID的存储配置
func (h *StorageHandler) DeleteConfig(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "配置ID无效")
		return
	}

	if err := h.storageService.DeleteConfig(id); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "删除存储配置失败")
		}
		return
	}

	response.SuccessWithMessage(c, "存储配置删除成功", nil)
}

// ActivateConfig 激活指定配置，同角色的其他配置自动取消激活
func (h *StorageHandler) ActivateConfig(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "配置ID无效")
		return
	}

	if err := h.storageService.ActivateConfig(id); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "激活存储配置失败")
		}
		return
	}

	response.SuccessWithMessage(c, "存储配置已激活", nil)
}

// ToggleConfig 启用/禁用存储配置
func (h *StorageHandler) ToggleConfig(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "配置ID无效")
		return
	}

	var body struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.storageService.ToggleConfig(id, *body.Enabled); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "切换存储配置状态失败")
		}
		return
	}

	response.SuccessWithMessage(c, "存储配置状态已更新", gin.H{
		"enabled": *body.Enabled,
	})
}

// TestConfig 测试指定配置的后端连通性
func (h *StorageHandler) TestConfig(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "配置ID无效")
		return
	}

	if err := h.storageService.TestConfig(id); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.Error(c, int(errors.ErrStorageConnectionFailed), err.Error())
		}
		return
	}

	response.SuccessWithMessage(c, "存储连接测试通过", nil)
}

// GetActiveConfig 获取指定角色当前激活的配置
func (h *StorageHandler) GetActiveConfig(c *gin.Context) {
	role := c.Query("role")
	if role != database.StorageRoleDocstore && role != database.StorageRoleInbox {
		response.BadRequest(c, "角色参数无效，必须为 docstore 或 inbox")
		return
	}

	cfg, err := h.storageService.GetActiveConfig(role)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.NotFound(c, "该角色没有激活的存储配置")
		}
		return
	}

	response.Success(c, gin.H{
		"config": cfg,
	})
}

// parseIDParam 解析路径中的数字ID参数
func parseIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
