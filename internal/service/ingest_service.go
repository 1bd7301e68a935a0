// 本文件实现了收件箱摄取守护服务，持续监听收件箱并自动归档新文档
// 主要功能包括：
// - 收件箱周期轮询与本地目录变化监听
// - 并发归档工作协程与队列管理
// - 瞬态失败的指数退避重试
// - 落位确认后删除收件箱原件
// - 按月摄取流水日志
package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/database"
	apperrors "github.com/weiwangfds/docfiler/internal/errors"
	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// ingestTask 摄取任务
type ingestTask struct {
	Info       storage.FileInfo // 收件箱中的文档信息
	RetryCount int              // 已重试次数
}

// IngestStatus 摄取守护服务状态
type IngestStatus struct {
	Running   bool  `json:"running"`    // 服务是否运行中
	Queued    int   `json:"queued"`     // 队列中等待处理的任务数
	Pending   int   `json:"pending"`    // 等待重试的任务数
	Processed int64 `json:"processed"`  // 累计成功处理数
	Failed    int64 `json:"failed"`     // 累计最终失败数
}

// IngestService 收件箱摄取守护服务接口
type IngestService interface {
	// Start 启动摄取守护服务
	// 参数:
	//   ctx - 上下文，用于控制服务生命周期
	// 功能:
	//   - 启动收件箱轮询协程
	//   - 启动归档工作协程与重试协程
	//   - 收件箱为本地后端时额外启动目录变化监听
	Start(ctx context.Context) error

	// Stop 停止摄取守护服务
	// 优雅关闭所有工作协程，等待正在处理的任务完成
	Stop() error

	// Status 返回服务运行状态与处理统计
	Status() IngestStatus
}

// ingestService 收件箱摄取守护服务实现
type ingestService struct {
	db         *gorm.DB
	filing     FilingService
	storageSvc StorageConfigService
	cfg        *config.Config
	ingress    *ingressLogger

	taskQueue   chan *ingestTask
	pollTrigger chan struct{}
	stopChan    chan struct{}
	wg          sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	recorder  *runRecorder    // 本次守护运行的处置明细记录器，启动时创建
	inflight  map[string]bool // 路径 -> 已入队，避免同一文档重复入队
	pending   []*ingestTask   // 等待重试的任务
	nextRetry map[string]time.Time
	processed int64
	failed    int64
}

// NewIngestService 创建收件箱摄取守护服务实例
// 参数:
//   - db: GORM数据库连接实例，用于运行日志落库
//   - filing: 归档服务，复用其单文档归档管线
//   - storageSvc: 存储配置服务
//   - cfg: 应用配置
func NewIngestService(db *gorm.DB, filing FilingService, storageSvc StorageConfigService, cfg *config.Config) IngestService {
	return &ingestService{
		db:          db,
		filing:      filing,
		storageSvc:  storageSvc,
		cfg:         cfg,
		ingress:     newIngressLogger(cfg.File.IngressLogFolder),
		taskQueue:   make(chan *ingestTask, cfg.Ingest.QueueSize),
		pollTrigger: make(chan struct{}, 1),
		inflight:    make(map[string]bool),
		nextRetry:   make(map[string]time.Time),
	}
}

// Start 启动摄取守护服务
func (s *ingestService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return apperrors.NewByCode(apperrors.ErrWorkflowRunning).WithDetails("ingest daemon already running")
	}

	// 一次守护运行对应一条运行记录，停止时收口
	recorder, err := startRun(s.db, database.RunTypeIngest)
	if err != nil {
		return err
	}
	s.recorder = recorder
	s.isRunning = true
	s.stopChan = make(chan struct{})

	logger.Infof("[摄取服务] 启动，轮询间隔: %v, 工作协程: %d", s.cfg.Ingest.PollDuration(), s.cfg.Ingest.WorkerCount)

	s.wg.Add(1)
	go s.pollWorker(ctx)

	workers := s.cfg.Ingest.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.ingestWorker(ctx)
	}

	s.wg.Add(1)
	go s.retryWorker(ctx)

	// 收件箱为本地后端时启用目录变化监听，新文件落地立即触发轮询
	if inbox, err := s.storageSvc.GetActiveDriver(database.StorageRoleInbox); err == nil {
		if local, ok := inbox.(*storage.LocalDriver); ok {
			s.wg.Add(1)
			go s.fsWatcher(ctx, local.StoreID())
		}
	}

	return nil
}

// Stop 停止摄取守护服务
func (s *ingestService) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	if s.recorder != nil {
		s.recorder.finish(nil)
		s.recorder = nil
	}
	s.isRunning = false
	s.mu.Unlock()

	logger.Info("[摄取服务] 已停止")
	return nil
}

// recordEntry 将处置结果写入本次守护运行的处置明细
func (s *ingestService) recordEntry(result *FileResult) {
	s.mu.RLock()
	recorder := s.recorder
	s.mu.RUnlock()
	if recorder == nil {
		return
	}
	recorder.record(result.Hash, result.SourceURI, result.DestinationURI,
		result.Disposition, result.Reason)
}

// Status 返回服务运行状态与处理统计
func (s *ingestService) Status() IngestStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IngestStatus{
		Running:   s.isRunning,
		Queued:    len(s.taskQueue),
		Pending:   len(s.pending),
		Processed: s.processed,
		Failed:    s.failed,
	}
}

// pollWorker 收件箱轮询协程
func (s *ingestService) pollWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Ingest.PollDuration())
	defer ticker.Stop()

	// 启动后立即执行一次轮询
	s.poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.poll()
		case <-s.pollTrigger:
			s.poll()
		}
	}
}

// poll 列出收件箱文档并将未入队的文档加入任务队列
func (s *ingestService) poll() {
	inbox, err := s.storageSvc.GetActiveDriver(database.StorageRoleInbox)
	if err != nil {
		logger.Warnf("[摄取服务] 收件箱驱动不可用，跳过本轮轮询: %v", err)
		return
	}

	files, err := inbox.ListFiles("", true, s.cfg.File.Extensions)
	if err != nil {
		logger.Warnf("[摄取服务] 收件箱列举失败: %v", err)
		return
	}

	queued := 0
	for _, info := range files {
		if inSystemFolder(info.Path) {
			continue
		}
		if !s.markInflight(info.Path) {
			continue
		}
		select {
		case s.taskQueue <- &ingestTask{Info: info}:
			queued++
		default:
			s.clearInflight(info.Path)
			logger.Warnf("[摄取服务] 任务队列已满，文档延后处理: %s", info.Path)
		}
	}
	if queued > 0 {
		logger.Infof("[摄取服务] 本轮入队文档数: %d", queued)
	}
}

// ingestWorker 归档工作协程
func (s *ingestService) ingestWorker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case task := <-s.taskQueue:
			s.processTask(ctx, task)
		}
	}
}

// processTask 处理单个摄取任务
// 归档成功并确认落位后删除收件箱原件；瞬态存储失败走指数退避重试，
// 其余失败（分类错误、永久存储错误）立即记入失败流水，不再重试
func (s *ingestService) processTask(ctx context.Context, task *ingestTask) {
	inbox, err := s.storageSvc.GetActiveDriver(database.StorageRoleInbox)
	if err != nil {
		s.scheduleRetry(task, err.Error())
		return
	}
	docstore, err := s.storageSvc.GetActiveDriver(database.StorageRoleDocstore)
	if err != nil {
		s.scheduleRetry(task, err.Error())
		return
	}
	tree, err := s.filing.LoadLayout(docstore)
	if err != nil {
		s.scheduleRetry(task, err.Error())
		return
	}

	result, err := s.filing.FileDocument(ctx, inbox, docstore, tree, task.Info, ScanOptions{})
	if err != nil {
		// 缓存损坏等致命错误，守护服务不再自动重试
		logger.Errorf("[摄取服务] 文档处理遇到致命错误，停止重试 %s: %v", task.Info.Path, err)
		s.finishTask(task, &FileResult{
			SourceURI:   storage.MakeURI(inbox, task.Info.Path),
			Disposition: database.DispositionFailed,
			Reason:      err.Error(),
		}, docstore, inbox)
		return
	}

	if result.Disposition == database.DispositionFailed && storage.IsTransient(result.Err) {
		s.scheduleRetry(task, result.Reason)
		return
	}

	s.finishTask(task, result, docstore, inbox)
}

// finishTask 完成摄取任务的收尾：确认落位、删除原件、写流水日志
func (s *ingestService) finishTask(task *ingestTask, result *FileResult,
	docstore storage.Driver, inbox storage.Driver) {

	defer s.clearInflight(task.Info.Path)

	entry := ingressEntry{
		Time:    time.Now(),
		Source:  result.SourceURI,
		Dest:    result.DestinationURI,
		Summary: result.Summary,
	}

	switch result.Disposition {
	case database.DispositionFailed:
		entry.Status = "FAILED"
		entry.Err = result.Reason
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()

	case database.DispositionSkipped:
		if result.DestinationURI == "" {
			// 空文件等无落位的跳过，原件留在收件箱
			return
		}
		entry.Status = "SKIPPED"
		s.removeOriginal(task, result, docstore, inbox)
		s.mu.Lock()
		s.processed++
		s.mu.Unlock()

	default:
		entry.Status = "FILED"
		s.removeOriginal(task, result, docstore, inbox)
		s.mu.Lock()
		s.processed++
		s.mu.Unlock()
	}

	s.recordEntry(result)
	s.ingress.append(docstore, entry)
}

// removeOriginal 确认归档副本在位后删除收件箱原件
// 落位确认失败时原件保留，等待下一轮轮询重新处理
func (s *ingestService) removeOriginal(task *ingestTask, result *FileResult,
	docstore storage.Driver, inbox storage.Driver) {

	destLoc, ok := storage.ParseLocation(result.DestinationURI)
	if !ok || !sameStoreAs(destLoc, docstore) {
		logger.Warnf("[摄取服务] 落位URI异常，保留收件箱原件: %s", result.DestinationURI)
		return
	}

	exists, err := docstore.FileExists(destLoc.RelPath)
	if err != nil || !exists {
		logger.Warnf("[摄取服务] 落位确认失败，保留收件箱原件: %s", task.Info.Path)
		return
	}

	if err := inbox.Delete(task.Info.Path); err != nil {
		logger.Warnf("[摄取服务] 删除收件箱原件失败 %s: %v", task.Info.Path, err)
		return
	}
	logger.Infof("[摄取服务] 文档已归档并清理原件: %s -> %s", task.Info.Path, destLoc.RelPath)
}

// scheduleRetry 为失败任务安排指数退避重试
// 超过最大重试次数后记入失败流水并放弃，原件留在收件箱
func (s *ingestService) scheduleRetry(task *ingestTask, reason string) {
	if task.RetryCount >= s.cfg.Ingest.MaxRetries {
		logger.Warnf("[摄取服务] 重试次数耗尽，放弃文档 %s: %s", task.Info.Path, reason)
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		s.clearInflight(task.Info.Path)

		if docstore, err := s.storageSvc.GetActiveDriver(database.StorageRoleDocstore); err == nil {
			if inbox, err := s.storageSvc.GetActiveDriver(database.StorageRoleInbox); err == nil {
				s.recordEntry(&FileResult{
					SourceURI:   storage.MakeURI(inbox, task.Info.Path),
					Disposition: database.DispositionFailed,
					Reason:      reason,
				})
				s.ingress.append(docstore, ingressEntry{
					Time:   time.Now(),
					Status: "FAILED",
					Source: storage.MakeURI(inbox, task.Info.Path),
					Err:    reason,
				})
			}
		}
		return
	}

	backoff := s.backoff(task.RetryCount)
	task.RetryCount++

	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.nextRetry[task.Info.Path] = time.Now().Add(backoff)
	s.mu.Unlock()

	logger.Infof("[摄取服务] 文档 %s 将在 %v 后重试（第 %d/%d 次）: %s",
		task.Info.Path, backoff, task.RetryCount, s.cfg.Ingest.MaxRetries, reason)
}

// backoff 计算第n次重试的退避时长（指数退避，带上限）
func (s *ingestService) backoff(retryCount int) time.Duration {
	base := s.cfg.Ingest.RetryBaseSecs
	if base <= 0 {
		base = 2
	}
	secs := float64(base) * math.Pow(2, float64(retryCount))
	if max := float64(s.cfg.Ingest.RetryMaxSecs); max > 0 && secs > max {
		secs = max
	}
	return time.Duration(secs) * time.Second
}

// retryWorker 重试处理协程，定期将到期任务重新入队
func (s *ingestService) retryWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.requeueDue()
		}
	}
}

// requeueDue 将到期的重试任务重新加入任务队列
func (s *ingestService) requeueDue() {
	now := time.Now()

	s.mu.Lock()
	var due []*ingestTask
	var remaining []*ingestTask
	for _, task := range s.pending {
		if next, ok := s.nextRetry[task.Info.Path]; !ok || !next.After(now) {
			due = append(due, task)
			delete(s.nextRetry, task.Info.Path)
		} else {
			remaining = append(remaining, task)
		}
	}
	s.pending = remaining
	s.mu.Unlock()

	for _, task := range due {
		select {
		case s.taskQueue <- task:
		default:
			// 队列仍满，放回等待下一轮
			s.mu.Lock()
			s.pending = append(s.pending, task)
			s.nextRetry[task.Info.Path] = now.Add(5 * time.Second)
			s.mu.Unlock()
		}
	}
}

// fsWatcher 本地收件箱目录变化监听协程
// 文件落地事件触发一次即时轮询，监听失败时退回纯轮询模式
func (s *ingestService) fsWatcher(ctx context.Context, root string) {
	defer s.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("[摄取服务] 目录监听初始化失败，退回轮询模式: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		logger.Warnf("[摄取服务] 目录监听注册失败，退回轮询模式: %v", err)
		return
	}
	logger.Infof("[摄取服务] 收件箱目录监听已启动: %s", root)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				s.triggerPoll()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("[摄取服务] 目录监听错误: %v", err)
		}
	}
}

// triggerPoll 触发一次即时轮询，已有待触发信号时合并
func (s *ingestService) triggerPoll() {
	select {
	case s.pollTrigger <- struct{}{}:
	default:
	}
}

// markInflight 标记文档已入队，重复入队时返回false
func (s *ingestService) markInflight(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[path] {
		return false
	}
	s.inflight[path] = true
	return true
}

// clearInflight 清除文档的入队标记
func (s *ingestService) clearInflight(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, path)
}
