package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/handler"
	"github.com/jengzang/tourist-safety-backend/internal/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Assessment *handler.AssessmentHandler
	Tourist    *handler.TouristHandler
	Training   *handler.TrainingHandler
	Zone       *handler.ZoneHandler
}

// SetupRouter 设置路由. limiter may be nil to disable rate limiting.
func SetupRouter(h Handlers, limiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", h.Health.Health)

	// API 路由组
	api := r.Group("/api/v1")
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter))
	}
	{
		// 位置上报与评估
		api.POST("/locations", h.Assessment.RecordLocation)
		api.POST("/assessments", h.Assessment.Assess)

		tourists := api.Group("/tourists/:id")
		{
			tourists.GET("/assessments/latest", h.Assessment.LatestAssessment)
			tourists.GET("/alerts", h.Tourist.ListAlerts)
			tourists.PUT("/route", h.Tourist.SaveRoute)
		}

		// 模型训练
		training := api.Group("/training")
		{
			training.GET("/status", h.Training.Status)
			training.GET("/runs", h.Training.ListRuns)
			training.POST("/:kind/retrain", h.Training.Retrain)
			training.GET("/:kind/snapshots", h.Training.Snapshots)
		}

		// 区域
		zones := api.Group("/zones")
		{
			zones.GET("", h.Zone.ListZones)
			zones.POST("/reload", h.Zone.Reload)
		}
	}

	return r
}
