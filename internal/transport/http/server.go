package http

import (
	stdhttp "net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/auth"
	"github.com/ijarahub/ijara-messaging/internal/config"
	"github.com/ijarahub/ijara-messaging/internal/metrics"
	"github.com/ijarahub/ijara-messaging/internal/relay"
	"github.com/ijarahub/ijara-messaging/internal/store"
)

// NewServer builds the dev relay HTTP server: REST API, socket endpoint,
// health and metrics.
func NewServer(hub *relay.Hub, authService *auth.Service, st store.Store, cfg *config.ServerConfig, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	conversationHandlers := NewConversationHandlers(st, hub.Directory(), logger)
	wsHandler := NewWSHandler(hub, authService, cfg.MaxMessageBytes, cfg.SendRatePerMinute, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/auth/register", apiHandlers.Register)
	router.POST("/auth/login", apiHandlers.Login)

	protected := router.Group("/")
	protected.Use(AuthMiddleware(authService, logger))
	{
		protected.GET("/profile", userHandlers.Profile)
		protected.GET("/conversations", conversationHandlers.ListConversations)
		protected.POST("/conversations", conversationHandlers.StartConversation)
		protected.GET("/messages/:conversationId", conversationHandlers.ListMessages)
	}

	// The socket authenticates itself so browsers can pass ?token=.
	router.GET("/socket", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
