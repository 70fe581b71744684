package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coachfit/backend/config"
	"coachfit/backend/internal/api/handler"
	"coachfit/backend/internal/api/middleware"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 预约模块
		appointments := v1.Group("/appointments")
		{
			appointments.POST("", h.Appointment.Create)
			appointments.GET("", h.Appointment.List)
			appointments.GET("/:id", h.Appointment.Get)
			appointments.PUT("/:id", h.Appointment.Update)
			appointments.DELETE("/:id", h.Appointment.Delete)
			appointments.POST("/:id/resync", h.Appointment.Resync)
		}

		// 导出模块
		export := v1.Group("/export")
		{
			export.GET("/appointments", h.Export.ExportAppointments)
		}
	}

	return r
}
