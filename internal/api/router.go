package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/api/handler"
	"github.com/qs3c/himera_gate_server/internal/api/middleware"
)

type Router struct {
	turnHandler      *handler.TurnHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
	logger           *zap.Logger
}

func NewRouter(
	turnHandler *handler.TurnHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		turnHandler:      turnHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
		logger:           logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.logger))

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(200, "ok")
	})

	api := engine.Group("/api/v1")
	{
		// WebSocket，令牌走 query
		api.GET("/admin/stream", r.websocketHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.POST("/turns", r.turnHandler.Create)
			authenticated.GET("/status", r.turnHandler.Status)
			authenticated.POST("/logout", r.turnHandler.Logout)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.Auth(r.cfg.JWT.Secret), middleware.AdminOnly(r.cfg))
		{
			admin.POST("/credentials", r.adminHandler.AddCredential)
			admin.GET("/credentials", r.adminHandler.ListCredentials)
			admin.POST("/credentials/deactivate", r.adminHandler.DeactivateCredential)
			admin.GET("/stats", r.adminHandler.Stats)
			admin.GET("/blocked", r.adminHandler.Blocked)
			admin.POST("/unblock", r.adminHandler.Unblock)
			admin.GET("/audit", r.adminHandler.AuditLog)
			admin.POST("/housekeeping", r.adminHandler.Housekeeping)
		}
	}

	return engine
}
