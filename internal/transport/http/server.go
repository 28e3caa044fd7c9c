package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/config"
	"github.com/vovakirdan/marketsync/internal/core"
	"github.com/vovakirdan/marketsync/internal/store"
)

// NewServer builds the relay HTTP server: health, WebSocket and REST routes.
func NewServer(hub *core.Hub, bus Publisher, authService *auth.Service, st store.Store, cfg config.RelayConfig, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, bus, authService, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every relay route on a gin engine.
func NewRouter(hub *core.Hub, bus Publisher, authService *auth.Service, st store.Store, cfg config.RelayConfig, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, WSOptions{
		MaxMessageBytes:  cfg.MaxMessageBytes,
		ActionsPerMinute: cfg.ActionsPerMinute,
	}, logger)))

	apiHandlers := NewAPIHandlers(bus, logger)
	notificationHandlers := NewNotificationHandlers(st, bus, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	api.POST("/events", apiHandlers.PublishEvent)

	notifications := api.Group("/notifications")
	notifications.GET("", notificationHandlers.List)
	notifications.POST("", notificationHandlers.Create)
	notifications.GET("/unread-count", notificationHandlers.UnreadCount)
	notifications.PUT("/read-all", notificationHandlers.MarkAllRead)
	notifications.DELETE("/clear-all", notificationHandlers.Clear)
	notifications.GET("/settings/me", notificationHandlers.GetSettings)
	notifications.PUT("/settings/me", notificationHandlers.UpdateSettings)
	notifications.PUT("/:id/read", notificationHandlers.MarkRead)
	notifications.DELETE("/:id", notificationHandlers.Delete)

	messages := api.Group("/messages")
	messages.POST("/conversations/:id/mark-read", apiHandlers.MarkConversationRead)
	messages.GET("/conversations/unread-count", apiHandlers.UnreadMessages)
	messages.PUT("/messages/:id/status", apiHandlers.UpdateMessageStatus)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
