package api

import (
	"os"
	"strings"
	"time"

	knowledgeHandlers "backend/api/handlers/knowledge"
	"backend/internal/config"
	"backend/internal/embedding"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/knowledge"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/progress"
	"backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 组装路由与 Worker 服务器，队列客户端交由调用方在退出时关闭
// Redis 不可用时任务队列退回进程内 goroutine 实现，此时返回的 Worker 为 nil
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server, queue.Client) {
	router := gin.New()

	// Redis：任务队列与向量缓存共用，连不上则降级
	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，任务队列与向量缓存退回内存实现", zap.Error(err))
		redisClient = nil
	}

	// 向量化提供者（进程内单例，模型延迟加载）
	provider := embedding.NewProviderFromConfig(&cfg.Embedding, redisClient)

	// 知识库存储
	store, err := knowledge.NewPGVectorStore(db)
	if err != nil {
		logger.Fatal("初始化向量存储失败", zap.Error(err))
	}

	// 进度跟踪器与导入流水线
	tracker := progress.NewTracker()
	pipeline := knowledge.NewPipeline(store, provider, tracker, cfg.Ingest.BatchSize)
	searchService := knowledge.NewService(store, provider)

	// 任务队列：有 Redis 走 asynq，否则进程内直接起 goroutine
	// 进度存内存，worker 必须与 API 同进程运行
	var queueClient queue.Client
	var workerServer *worker.Server
	if redisClient != nil {
		queueClient = queue.NewClient(cfg.Redis)
		workerServer = worker.NewServer(cfg.Redis, pipeline, logger.Get())
	} else {
		queueClient = queue.NewMemoryClient(pipeline)
	}

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 初始化 Handlers
	ingestHandler := knowledgeHandlers.NewIngestHandler(queueClient, tracker, cfg.Ingest.TempDir)
	collectionHandler := knowledgeHandlers.NewCollectionHandler(store)
	searchHandler := knowledgeHandlers.NewSearchHandler(searchService)

	// 路由注册器，同时挂载 /api 与 /api/v1
	registerAPIRoutes := func(apiGroup *gin.RouterGroup) {
		kbGroup := apiGroup.Group("/knowledge-base")
		{
			kbGroup.POST("/ingest", ingestHandler.Ingest)
			kbGroup.GET("/ingest/progress/:jobId", ingestHandler.Progress)
			kbGroup.DELETE("/collection/:collectionName", collectionHandler.DeleteCollection)
			kbGroup.GET("/collection/:collectionName/entries", collectionHandler.ListEntries)
			kbGroup.DELETE("/entries/:id", collectionHandler.DeleteEntry)
			kbGroup.POST("/search", searchHandler.Search)
		}
	}

	registerAPIRoutes(router.Group("/api"))
	registerAPIRoutes(router.Group("/api/v1"))

	return router, workerServer, queueClient
}

// RequestLogger 请求日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// CORS 跨域中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowedOrigins := getEnvList("CORS_ALLOW_ORIGINS")
		origin := c.GetHeader("Origin")
		switch {
		case len(allowedOrigins) == 0:
			// 开发缺省：全部放行
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && stringInSlice(origin, allowedOrigins):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		default:
			// 未匹配则不设置 Allow-Origin，浏览器将拦截
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "academy-knowledge-base",
		})
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(503, gin.H{
				"status": "not_ready",
				"reason": "database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(503, gin.H{
				"status": "not_ready",
				"reason": "database ping failed",
			})
			return
		}

		c.JSON(200, gin.H{
			"status":   "ready",
			"database": "connected",
		})
	}
}

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var res []string
	for _, p := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}

// stringInSlice 判断字符串是否存在
func stringInSlice(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
