package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/weiwangfds/docfiler/config"
	"github.com/weiwangfds/docfiler/internal/cache"
	"github.com/weiwangfds/docfiler/internal/classify"
	"github.com/weiwangfds/docfiler/internal/database"
	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/middleware"
	"github.com/weiwangfds/docfiler/internal/router"
	"github.com/weiwangfds/docfiler/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化中间件
	loggerMiddleware := middleware.NewLoggerMiddleware()

	// 初始化存储配置服务并补种默认存储配置
	storageService := service.NewStorageConfigService(db)
	if err := storageService.EnsureDefaults(cfg); err != nil {
		logger.Fatalf("Failed to seed default storage configs: %v", err)
	}

	// 初始化文档分类器
	classifierFactory := &classify.ClassifierFactory{}
	classifier, err := classifierFactory.CreateClassifier(cfg.Classify)
	if err != nil {
		logger.Fatalf("Failed to create classifier: %v", err)
	}

	// 初始化归档相关服务，工作流互斥锁由各服务共享
	metaCache := cache.NewMetadataCache(db)
	guard := &service.RunGuard{}
	filingService := service.NewFilingService(db, metaCache, storageService, classifier, cfg, guard)
	reconService := service.NewReconService(db, metaCache, storageService, classifier, filingService, cfg, guard)
	reportService := service.NewReportService(db, metaCache)
	ingestService := service.NewIngestService(db, filingService, storageService, cfg)

	// 初始化路由
	r := router.NewRouter(loggerMiddleware, db, router.Services{
		Storage: storageService,
		Filing:  filingService,
		Recon:   reconService,
		Report:  reportService,
		Ingest:  ingestService,
	})

	// 启动收件箱摄取守护服务
	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	if err := ingestService.Start(ingestCtx); err != nil {
		logger.Warnf("Failed to start ingest daemon: %v", err)
	}

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r.GetEngine(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动HTTP服务器
	go func() {
		logger.Infof("HTTP服务器启动在端口 %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	// 停止摄取守护服务
	cancelIngest()
	if err := ingestService.Stop(); err != nil {
		logger.Errorf("Error stopping ingest daemon: %v", err)
	}

	// 优雅关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("HTTP服务器强制关闭: %v", err)
	}

	logger.Info("服务器已退出")
}
