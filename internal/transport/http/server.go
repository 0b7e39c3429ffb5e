package http

import (
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	"finchat/internal/ai"
	appsvc "finchat/internal/app"
	"finchat/internal/bootstrap"
	"finchat/internal/cache"
	"finchat/internal/platform/rabbitmq"
	"finchat/internal/repository"
	"finchat/internal/transport/http/handler"
	"finchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(app.Logger))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)

	resolver := appsvc.NewSessionResolver(sessionRepo)
	authService := appsvc.NewAuthService(
		userRepo,
		resolver,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		resolver,
		sessionRepo,
		messageRepo,
		app.VectorStore,
		app.LLMClient,
		appsvc.GenerationOptions{
			Chat: ai.ChatConfig{
				BaseURL:     cfg.LLM.BaseURL,
				APIKey:      cfg.LLM.APIKey,
				Model:       cfg.LLM.Model,
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   cfg.LLM.MaxTokens,
			},
			Title: ai.ChatConfig{
				BaseURL:     cfg.LLM.BaseURL,
				APIKey:      cfg.LLM.APIKey,
				Model:       cfg.LLM.TitleModel,
				Temperature: 0.7,
				MaxTokens:   20,
			},
			TopK:      cfg.Retrieval.TopK,
			Namespace: cfg.Retrieval.Namespace,
		},
		app.Logger,
	)
	publisher := rabbitmq.NewDocumentPublisher(app.MQConn, cfg.RabbitMQ.DocumentQueue)
	adminService := appsvc.NewAdminService(app.VectorStore, publisher, cfg.Retrieval.Namespace)

	authHandler := handler.NewAuthHandler(authService)
	cookieSameSite := nethttp.SameSiteLaxMode
	if cfg.IsProduction() {
		cookieSameSite = nethttp.SameSiteNoneMode
	}
	chatHandler := handler.NewChatHandler(chatService, handler.CookieOptions{
		Name:     cfg.Session.CookieName,
		MaxAge:   cfg.Session.CookieMaxAge,
		Secure:   cfg.IsProduction(),
		SameSite: cookieSameSite,
	})
	adminHandler := handler.NewAdminHandler(adminService)

	limiter := cache.NewRateLimiter(app.Redis, app.Logger)
	limit := func(scope string, perMinute int) gin.HandlerFunc {
		if !cfg.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimit(limiter, scope, perMinute)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.OptionalJWT(cfg.Auth.JWTSecret), limit("default", cfg.RateLimit.DefaultPerMinute))

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", limit("auth", cfg.RateLimit.AuthPerMinute), authHandler.Register)
	authGroup.POST("/login", limit("auth", cfg.RateLimit.AuthPerMinute), authHandler.Login)
	authGroup.GET("/me", middleware.RequireJWT(cfg.Auth.JWTSecret), authHandler.Me)
	authGroup.POST("/sessions/promote", middleware.RequireJWT(cfg.Auth.JWTSecret), authHandler.PromoteSession)

	chatGroup := v1.Group("")
	chatGroup.Use(limit("chat", cfg.RateLimit.ChatPerMinute))
	chatGroup.POST("/chat", chatHandler.SendMessage)
	chatGroup.POST("/chat/stream", chatHandler.StreamMessage)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.GET("/sessions/:id/messages", chatHandler.ListMessages)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.RequireJWT(cfg.Auth.JWTSecret), limit("admin", cfg.RateLimit.AdminPerMinute))
	adminGroup.GET("/index/stats", adminHandler.IndexStats)
	adminGroup.POST("/index/search", adminHandler.TestSearch)
	adminGroup.POST("/index/documents", adminHandler.IngestDocuments)
	adminGroup.DELETE("/index/documents", adminHandler.DeleteDocuments)

	return router
}
