package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/regscout/regscout-backend/internal/http/handlers"
	"github.com/regscout/regscout-backend/internal/http/middleware"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/platform/tracing"
)

type RouterConfig struct {
	Log              *logger.Logger
	AuthMiddleware   *middleware.AuthMiddleware
	AuthHandler      *handlers.AuthHandler
	ChatHandler      *handlers.ChatHandler
	DocumentsHandler *handlers.DocumentsHandler
	FeedbackHandler  *handlers.FeedbackHandler
	AdminHandler     *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(tracing.ServiceName))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(cfg.Log))

	// Public
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.POST("/auth/fingerprint", cfg.AuthHandler.Fingerprint)
	router.POST("/auth/validate-code", cfg.AuthHandler.ValidateCode)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.GET("/chat/:conversation_id/stream", cfg.ChatHandler.Stream)

		api.POST("/documents", cfg.DocumentsHandler.Upload)
		api.GET("/documents", cfg.DocumentsHandler.List)
		api.GET("/documents/:document_id/content", cfg.DocumentsHandler.Content)
		api.DELETE("/documents/:document_id", cfg.DocumentsHandler.Delete)
	}

	feedback := router.Group("/feedback")
	feedback.Use(cfg.AuthMiddleware.RequireAuth())
	feedback.POST("/submit", cfg.FeedbackHandler.Submit)

	// Admin
	admin := router.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireAdmin())
	{
		admin.GET("/usage", cfg.AdminHandler.Usage)
		admin.GET("/feedback", cfg.AdminHandler.Feedback)
		admin.GET("/codes", cfg.AdminHandler.ListCodes)
		admin.POST("/codes", cfg.AdminHandler.GenerateCode)
	}

	return router
}
