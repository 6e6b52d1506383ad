package router

import (
	"chatio/config"
	"chatio/internal/cache"
	"chatio/internal/domain"
	"chatio/internal/handler"
	"chatio/internal/middleware"
	"chatio/internal/repository"
	"chatio/internal/service"
	"chatio/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers. hub must be the one whose
// relay (if any) the caller runs.
func Setup(cfg *config.Config, db *gorm.DB, store cache.Store, hub *ws.Hub, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger(); services log through zap.
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)

	// Services
	authSvc := service.NewAuthService(cfg, userRepo, log)
	conversations := service.NewConversationManager(chatRepo, log)
	sessions := service.NewSessionTracker(store, cfg.Chat, log)
	matchmaker := service.NewMatchmaker(store, conversations, sessions, cfg.Chat, log)
	dispatcher := service.NewDispatcher(chatRepo, conversations, sessions, hub, cfg.Chat, log)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, log)
	chatHandler := handler.NewChatHandler(conversations, dispatcher, sessions, log)
	healthHandler := handler.NewHealthHandler(db, store, log)
	gateway := handler.NewChatGateway(cfg, hub, authSvc, sessions, matchmaker, conversations, dispatcher,
		middleware.NewInMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window), log)

	authMw := middleware.AuthRequired(&cfg.JWT)
	activeMw := middleware.ActiveUser(userRepo)

	r.GET("/healthz", healthHandler.Check)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/guest", authHandler.Guest)
		}

		api.GET("/conversation-types", chatHandler.ConversationTypes)

		me := api.Group("/me")
		me.Use(authMw, activeMw)
		{
			me.GET("", authHandler.Me)
			me.GET("/conversations", chatHandler.ListMyConversations)
			me.GET("/stranger-conversation", chatHandler.GetMyStrangerConversation)
		}

		conv := api.Group("/conversations")
		conv.Use(authMw, activeMw)
		{
			conv.GET("/:id/messages", chatHandler.GetMessages)
			conv.POST("/:id/messages", chatHandler.SendMessage)
		}

		api.GET("/presence/:user_id", authMw, middleware.RequireRole(domain.RoleRegistered), chatHandler.GetPresence)
	}

	r.GET("/ws/chat", gateway.Upgrade)

	return r
}
