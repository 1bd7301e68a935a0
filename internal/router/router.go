package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/weiwangfds/docfiler/internal/handler"
	"github.com/weiwangfds/docfiler/internal/middleware"
	"github.com/weiwangfds/docfiler/internal/service"
)

// Services 路由依赖的业务服务集合
type Services struct {
	Storage service.StorageConfigService
	Filing  service.FilingService
	Recon   service.ReconService
	Report  service.ReportService
	Ingest  service.IngestService
}

// Router 路由配置
type Router struct {
	engine *gin.Engine
	db     *gorm.DB
}

// NewRouter 创建路由实例
func NewRouter(loggerMiddleware *middleware.LoggerMiddleware, db *gorm.DB, services Services) *Router {
	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	// 初始化处理器
	storageHandler := handler.NewStorageHandler(services.Storage)
	workflowHandler := handler.NewWorkflowHandler(services.Filing, services.Recon, services.Report)
	recordHandler := handler.NewRecordHandler(services.Report)
	layoutHandler := handler.NewLayoutHandler(services.Filing, services.Storage)
	ingestHandler := handler.NewIngestHandler(services.Ingest)

	// 使用中间件
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(loggerMiddleware.Logger())
	engine.Use(loggerMiddleware.RequestLogger())

	// 配置CORS
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 健康检查
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Service is running",
		})
	})

	// API路由组
	api := engine.Group("/api/v1")
	{
		// 基础信息接口
		api.GET("/info", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"service": "Docfiler",
				"version": "1.0.0",
				"status":  "running",
			})
		})

		// 数据库状态检查
		api.GET("/db/status", func(c *gin.Context) {
			sqlDB, err := db.DB()
			if err != nil {
				c.JSON(500, gin.H{
					"error": "Database connection error",
				})
				return
			}

			if err := sqlDB.Ping(); err != nil {
				c.JSON(500, gin.H{
					"error": "Database ping failed",
				})
				return
			}

			c.JSON(200, gin.H{
				"status": "Database connection OK",
			})
		})

		// 存储配置管理接口
		storageGroup := api.Group("/storage")
		{
			// 存储配置CRUD
			storageGroup.POST("/configs", storageHandler.CreateConfig)
			storageGroup.GET("/configs", storageHandler.ListConfigs)
			storageGroup.GET("/configs/active", storageHandler.GetActiveConfig)
			storageGroup.GET("/configs/:id", storageHandler.GetConfig)
			storageGroup.PUT("/configs/:id", storageHandler.UpdateConfig)
			storageGroup.DELETE("/configs/:id", storageHandler.DeleteConfig)

			// 存储配置管理
			storageGroup.POST("/configs/:id/activate", storageHandler.ActivateConfig)
			storageGroup.POST("/configs/:id/test", storageHandler.TestConfig)
			storageGroup.PUT("/configs/:id/toggle", storageHandler.ToggleConfig)
		}

		// 布局接口
		layoutGroup := api.Group("/layout")
		{
			layoutGroup.GET("", layoutHandler.GetLayout)
			layoutGroup.POST("/check", layoutHandler.CheckPath)
		}

		// 元数据记录接口
		records := api.Group("/records")
		{
			records.GET("", recordHandler.ListRecords)
			records.GET("/stats", recordHandler.GetStats)
			records.GET("/:hash", recordHandler.GetRecord)
		}

		// 工作流接口
		workflows := api.Group("/workflows")
		{
			workflows.POST("/scan", workflowHandler.TriggerScan)
			workflows.POST("/verify", workflowHandler.TriggerVerify)
			workflows.POST("/repair", workflowHandler.TriggerRepair)
			workflows.POST("/deduplicate", workflowHandler.TriggerDeduplicate)
			workflows.GET("/status", workflowHandler.GetWorkflowStatus)
		}

		// 运行记录接口
		runs := api.Group("/runs")
		{
			runs.GET("", workflowHandler.ListRuns)
			runs.GET("/:run_id", workflowHandler.GetRun)
		}

		// 摄取守护服务接口
		ingest := api.Group("/ingest")
		{
			ingest.POST("/start", ingestHandler.StartIngest)
			ingest.POST("/stop", ingestHandler.StopIngest)
			ingest.GET("/status", ingestHandler.GetIngestStatus)
		}
	}

	return &Router{
		engine: engine,
		db:     db,
	}
}

// GetEngine 获取Gin引擎
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// GetDB 获取数据库连接
func (r *Router) GetDB() *gorm.DB {
	return r.db
}
