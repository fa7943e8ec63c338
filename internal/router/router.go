package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/handler"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Conversations *handler.ConversationHandler
	Messages      *handler.MessageHandler
	// WebSocket authenticates on its own from the query or header token.
	WebSocket gin.HandlerFunc
	Health    http.Handler
}

func SetupRouter(cfg *config.Config, tokens middleware.TokenValidator, h Handlers, logger *slog.Logger) *gin.Engine {
	gin.SetMode(cfg.App.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	if h.Health != nil {
		r.GET("/healthz", gin.WrapH(h.Health))
	}

	v1 := r.Group("/api/v1")
	{
		if h.WebSocket != nil {
			v1.GET("/ws", h.WebSocket)
		}

		authenticated := v1.Group("")
		authenticated.Use(middleware.JWTAuth(tokens))
		{
			conversations := authenticated.Group("/conversations")
			{
				conversations.GET("", h.Conversations.List)
				conversations.POST("", h.Conversations.Create)
				conversations.GET("/:id/messages", h.Conversations.Messages)
			}

			authenticated.POST("/messages", h.Messages.Send)
		}
	}

	return r
}
