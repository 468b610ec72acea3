package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/auth"
	"github.com/pixelfold/pixchat-server/internal/chat"
	"github.com/pixelfold/pixchat-server/internal/config"
	"github.com/pixelfold/pixchat-server/internal/metrics"
	"github.com/pixelfold/pixchat-server/internal/realtime"
)

// NewServer builds the HTTP server with REST, media and WebSocket routes.
func NewServer(
	svc *chat.Service,
	notifier *chat.Notifier,
	broker *realtime.Broker,
	authService *auth.Service,
	cfg config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.Static("/media", cfg.BlobDir)

	apiHandlers := NewAPIHandlers(authService, logger)
	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	chatHandlers := NewChatHandlers(svc, notifier, logger)
	authed := router.Group("/api")
	authed.Use(AuthMiddleware(authService, logger))
	{
		authed.GET("/contacts", chatHandlers.ListContacts)
		authed.GET("/conversations/:peer", chatHandlers.GetConversation)
		authed.POST("/conversations/:peer/messages", chatHandlers.SendMessage)
		authed.POST("/conversations/:peer/typing", chatHandlers.NotifyTyping)
	}

	wsHandler := NewWSHandler(svc, notifier, broker, authService, cfg, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
