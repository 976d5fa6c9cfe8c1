package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/attachvault/internal/app"
	"github.com/charlesng35/attachvault/internal/attachments"
	iauth "github.com/charlesng35/attachvault/internal/auth"
	"github.com/charlesng35/attachvault/internal/handlers"
	"github.com/charlesng35/attachvault/internal/messages"
	"github.com/charlesng35/attachvault/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cache *attachments.Cache, msgService *messages.Service, jwt *iauth.JWTService, cfg *app.Config) (*gin.Engine, error) {
	if cache == nil {
		return nil, fmt.Errorf("attachment cache must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	attachmentsHandler := handlers.NewAttachmentsHandler(cache)

	// Public routes
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Signed URL downloads carry their own capability token.
	r.GET("/attachments/:id", attachmentsHandler.Download)

	// Management API
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	atts := api.Group("/attachments")
	{
		atts.PUT("/:id", attachmentsHandler.Cache)
		atts.GET("/:id", attachmentsHandler.Get)
		atts.DELETE("/:id", attachmentsHandler.Remove)
		atts.POST("/:id/signed-url", attachmentsHandler.IssueSignedURL)
	}

	api.GET("/cache/stats", attachmentsHandler.Stats)
	api.POST("/cache/cleanup", middleware.RequireScope("attachments:admin"), attachmentsHandler.Cleanup)

	conversations := api.Group("/conversations")
	{
		conversations.GET("/:id/attachments", attachmentsHandler.ListConversation)
		conversations.DELETE("/:id/attachments", attachmentsHandler.ClearConversation)

		if msgService != nil {
			messagesHandler := handlers.NewMessagesHandler(msgService)
			conversations.POST("/:id/messages", messagesHandler.Store)
			conversations.GET("/:id/messages", messagesHandler.List)
			conversations.GET("/:id/messages/:messageID", messagesHandler.Get)
			conversations.DELETE("/:id/messages", messagesHandler.ClearConversation)
		}
	}

	return r, nil
}
