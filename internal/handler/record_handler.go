package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/response"
	"github.com/weiwangfds/docfiler/internal/service"
)

// RecordHandler 元数据记录处理器
type RecordHandler struct {
	reportService service.ReportService
}

// NewRecordHandler 创建元数据记录处理器实例
func NewRecordHandler(reportService service.ReportService) *RecordHandler {
	return &RecordHandler{
		reportService: reportService,
	}
}

// ListRecords 分页查询元数据记录，按更新时间倒序
func (h *RecordHandler) ListRecords(c *gin.Context) {
	page, pageSize := parsePageParams(c)

	records, total, err := h.reportService.ListRecords(page, pageSize)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "查询元数据记录失败")
		}
		return
	}

	response.SuccessWithPage(c, records, total, page, pageSize)
}

// GetRecord 按内容哈希查询单条元数据记录
func (h *RecordHandler) GetRecord(c *gin.Context) {
	hash := c.Param("hash")

	record, err := h.reportService.GetRecord(hash)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.NotFound(c, "元数据记录不存在")
		}
		return
	}

	response.Success(c, gin.H{
		"record": record,
	})
}

// GetStats 获取元数据缓存统计
func (h *RecordHandler) GetStats(c *gin.Context) {
	stats, err := h.reportService.Stats()
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "查询缓存统计失败")
		}
		return
	}

	response.Success(c, gin.H{
		"stats": stats,
	})
}
