package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiwangfds/docfiler/internal/database"
	"github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/response"
	"github.com/weiwangfds/docfiler/internal/service"
)

// WorkflowHandler 归档工作流处理器
// 工作流为长耗时操作，接口触发后在后台执行，通过运行记录接口查询进度与结果
type WorkflowHandler struct {
	filingService service.FilingService
	reconService  service.ReconService
	reportService service.ReportService
}

// NewWorkflowHandler 创建归档工作流处理器实例
func NewWorkflowHandler(filingService service.FilingService, reconService service.ReconService,
	reportService service.ReportService) *WorkflowHandler {
	return &WorkflowHandler{
		filingService: filingService,
		reconService:  reconService,
		reportService: reportService,
	}
}

// TriggerScan 触发收件箱扫描归档工作流
// 请求体可携带 update/verify 选项，工作流执行中时返回冲突
func (h *WorkflowHandler) TriggerScan(c *gin.Context) {
	var opts service.ScanOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.BadRequest(c, "请求参数错误: "+err.Error())
			return
		}
	}

	if active := h.filingService.ActiveWorkflow(); active != "" {
		response.Conflict(c, int(errors.ErrWorkflowRunning), "工作流正在执行: "+active)
		return
	}

	go func() {
		if _, err := h.filingService.Scan(context.Background(), opts); err != nil {
			logger.Errorf("[工作流] 扫描归档执行失败: %v", err)
		}
	}()

	response.SuccessWithMessage(c, "扫描归档工作流已启动", gin.H{
		"run_type": database.RunTypeScan,
		"options":  opts,
	})
}

// TriggerVerify 触发归档校验工作流
func (h *WorkflowHandler) TriggerVerify(c *gin.Context) {
	if active := h.filingService.ActiveWorkflow(); active != "" {
		response.Conflict(c, int(errors.ErrWorkflowRunning), "工作流正在执行: "+active)
		return
	}

	go func() {
		if _, err := h.reconService.Verify(context.Background()); err != nil {
			logger.Errorf("[工作流] 归档校验执行失败: %v", err)
		}
	}()

	response.SuccessWithMessage(c, "归档校验工作流已启动", gin.H{
		"run_type": database.RunTypeVerify,
	})
}

// TriggerRepair 触发缓存修复工作流
func (h *WorkflowHandler) TriggerRepair(c *gin.Context) {
	if active := h.filingService.ActiveWorkflow(); active != "" {
		response.Conflict(c, int(errors.ErrWorkflowRunning), "工作流正在执行: "+active)
		return
	}

	go func() {
		if _, err := h.reconService.Repair(context.Background()); err != nil {
			logger.Errorf("[工作流] 缓存修复执行失败: %v", err)
		}
	}()

	response.SuccessWithMessage(c, "缓存修复工作流已启动", gin.H{
		"run_type": database.RunTypeRepair,
	})
}

// TriggerDeduplicate 触发公司目录去重工作流
func (h *WorkflowHandler) TriggerDeduplicate(c *gin.Context) {
	if active := h.filingService.ActiveWorkflow(); active != "" {
		response.Conflict(c, int(errors.ErrWorkflowRunning), "工作流正在执行: "+active)
		return
	}

	go func() {
		if _, err := h.reconService.Deduplicate(context.Background()); err != nil {
			logger.Errorf("[工作流] 目录去重执行失败: %v", err)
		}
	}()

	response.SuccessWithMessage(c, "目录去重工作流已启动", gin.H{
		"run_type": database.RunTypeDeduplicate,
	})
}

// GetWorkflowStatus 获取工作流执行状态
func (h *WorkflowHandler) GetWorkflowStatus(c *gin.Context) {
	active := h.filingService.ActiveWorkflow()
	response.Success(c, gin.H{
		"active":   active != "",
		"workflow": active,
	})
}

// ListRuns 分页查询工作流运行记录
func (h *WorkflowHandler) ListRuns(c *gin.Context) {
	page, pageSize := parsePageParams(c)

	runs, total, err := h.reportService.ListRuns(page, pageSize)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.InternalServerError(c, "查询运行记录失败")
		}
		return
	}

	response.SuccessWithPage(c, runs, total, page, pageSize)
}

// GetRun 查询单次运行及其全部处置明细
func (h *WorkflowHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, entries, err := h.reportService.GetRun(runID)
	if err != nil {
		if appErr, ok := errors.GetAppError(err); ok {
			response.Error(c, int(appErr.Code), appErr.Message)
		} else {
			response.NotFound(c, "运行记录不存在")
		}
		return
	}

	response.Success(c, gin.H{
		"run":     run,
		"entries": entries,
	})
}

// parsePageParams 解析分页查询参数
func parsePageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize
}
