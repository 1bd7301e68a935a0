package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiwangfds/docfiler/internal/database"
	"github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/response"
	"github.com/weiwangfds/docfiler/internal/service"
)

// LayoutHandler 布局处理器
type LayoutHandler struct {
	filingService  service.FilingService
	storageService service.StorageConfigService
}

// NewLayoutHandler 创建布局处理器实例
func NewLayoutHandler(filingService service.FilingService, storageService service.StorageConfigService) *LayoutHandler {
	return &LayoutHandler{
		filingService:  filingService,
		storageService: storageService,
	}
}

// GetLayout 获取归档库当前布局
// 返回渲染后的布局树、前言与按公司目录清单
func (h *LayoutHandler) GetLayout(c *gin.Context) {
	docstore, err := h.storageService.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "获取归档库驱动失败")
		}
		return
	}

	tree, err := h.filingService.LoadLayout(docstore)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.Error(c, int(errors.ErrLayoutParseFailed), err.Error())
		}
		return
	}

	response.Success(c, gin.H{
		"rendered":         tree.Render(),
		"preamble":         tree.Preamble(),
		"by_company_paths": tree.ByCompanyPaths(),
	})
}

// CheckPath 校验路径是否为布局中的合法归档目录
func (h *LayoutHandler) CheckPath(c *gin.Context) {
	var body struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	docstore, err := h.storageService.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "获取归档库驱动失败")
		}
		return
	}

	tree, err := h.filingService.LoadLayout(docstore)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.Error(c, int(errors.ErrLayoutParseFailed), err.Error())
		}
		return
	}

	response.Success(c, gin.H{
		"path":  body.Path,
		"valid": tree.PathExists(body.Path),
	})
}
