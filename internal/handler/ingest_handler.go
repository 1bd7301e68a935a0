package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/response"
	"github.com/weiwangfds/docfiler/internal/service"
)

// IngestHandler 摄取守护服务处理器
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建摄取守护服务处理器实例
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
	}
}

// StartIngest 启动摄取守护服务
func (h *IngestHandler) StartIngest(c *gin.Context) {
	if err := h.ingestService.Start(context.Background()); err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Conflict(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "启动摄取服务失败")
		}
		return
	}

	response.SuccessWithMessage(c, "摄取服务已启动", nil)
}

// StopIngest 停止摄取守护服务
func (h *IngestHandler) StopIngest(c *gin.Context) {
	if err := h.ingestService.Stop(); err != nil {
		response.InternalServerError(c, "停止摄取服务失败: "+err.Error())
		return
	}

	response.SuccessWithMessage(c, "摄取服务已停止", nil)
}

// GetIngestStatus 获取摄取守护服务状态与处理统计
func (h *IngestHandler) GetIngestStatus(c *gin.Context) {
	response.Success(c, gin.H{
		"status": h.ingestService.Status(),
	})
}
