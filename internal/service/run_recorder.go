// 本文件实现了归档运行日志记录器与工作流互斥锁
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
)

// RunGuard 工作流互斥锁
// 扫描、校验、修复、去重等工作流共享同一把锁，同一时间只允许一个工作流执行
type RunGuard struct {
	mu      sync.Mutex
	running string // 当前执行中的工作流类型，空表示空闲
}

// acquire 尝试获取工作流执行权
// 已有工作流执行中时返回工作流冲突错误
func (g *RunGuard) acquire(runType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running != "" {
		return apperrors.NewByCode(apperrors.ErrWorkflowRunning).
			WithDetails("workflow in progress: " + g.running)
	}
	g.running = runType
	return nil
}

// release 释放工作流执行权
func (g *RunGuard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = ""
}

// current 返回当前执行中的工作流类型
func (g *RunGuard) current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// runRecorder 归档运行日志记录器
// 负责单次工作流执行的运行记录与逐文档处置明细落库
// record 可被多个工作协程并发调用
type runRecorder struct {
	db *gorm.DB

	mu  sync.Mutex
	run *database.FilingRun
}

// startRun 创建一条执行中状态的运行记录
func startRun(db *gorm.DB, runType string) (*runRecorder, error) {
	run := &database.FilingRun{
		RunID:     uuid.New().String(),
		RunType:   runType,
		Status:    database.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := db.Create(run).Error; err != nil {
		return nil, apperrors.WrapByCode(apperrors.ErrDatabaseQuery, err)
	}
	logger.Infof("[运行日志] 工作流开始: %s (运行ID: %s)", runType, run.RunID)
	return &runRecorder{db: db, run: run}, nil
}

// record 记录单个文档的处置结果并累计运行计数
func (r *runRecorder) record(hash, sourceURI, destURI, disposition, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &database.FilingEntry{
		RunID:       r.run.RunID,
		Hash:        hash,
		SourceURI:   sourceURI,
		DestURI:     destURI,
		Disposition: disposition,
		Reason:      reason,
	}
	if err := r.db.Create(entry).Error; err != nil {
		logger.Errorf("[运行日志] 处置明细写入失败 %s: %v", sourceURI, err)
	}

	r.run.Total++
	switch disposition {
	case database.DispositionFiled, database.DispositionRepaired, database.DispositionMoved:
		r.run.Filed++
	case database.DispositionFailed:
		r.run.Failed++
	default:
		r.run.Skipped++
	}
}

// finish 结束运行并落库最终状态
// err 非空时运行状态为失败并记录错误信息
func (r *runRecorder) finish(err error) *database.FilingRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.run.FinishedAt = &now
	if err != nil {
		r.run.Status = database.RunStatusFailed
		r.run.ErrorMsg = err.Error()
	} else {
		r.run.Status = database.RunStatusDone
	}

	if dbErr := r.db.Save(r.run).Error; dbErr != nil {
		logger.Errorf("[运行日志] 运行记录更新失败 %s: %v", r.run.RunID, dbErr)
	}

	logger.Infof("[运行日志] 工作流结束: %s (状态: %s, 总数: %d, 归档: %d, 跳过: %d, 失败: %d)",
		r.run.RunType, r.run.Status, r.run.Total, r.run.Filed, r.run.Skipped, r.run.Failed)
	return r.run
}
