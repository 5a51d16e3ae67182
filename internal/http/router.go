package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bikorot/auditsync/internal/http/handlers"
	"github.com/bikorot/auditsync/internal/http/middleware"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

type RouterConfig struct {
	Log              *logger.Logger
	HealthHandler    *handlers.HealthHandler
	SyncHandler      *handlers.SyncHandler
	AuditHandler     *handlers.AuditHandler
	ReferenceHandler *handlers.ReferenceHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/offline-sync", cfg.SyncHandler.Sync)

		api.POST("/audits", cfg.AuditHandler.Create)
		api.GET("/audits", cfg.AuditHandler.List)
		api.GET("/audits/:id", cfg.AuditHandler.Get)
		api.DELETE("/audits/:id", cfg.AuditHandler.Delete)

		api.GET("/reference", cfg.ReferenceHandler.Get)
	}

	return router
}
