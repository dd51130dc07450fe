package handler

import (
	"net/http"

	"chatbot-go/internal/middleware"
	"chatbot-go/internal/service"

	"github.com/gin-gonic/gin"
)

// RouterDeps 汇总了注册路由所需的服务。
type RouterDeps struct {
	UserService         service.UserService
	ConversationService service.ConversationService
	ChatService         service.ChatService
	SpeechService       service.SpeechService
	SearchService       service.SearchService
	AllowedOrigins      []string
	MaxUploadBytes      int64
}

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(d.AllowedOrigins))
	r.MaxMultipartMemory = 8 << 20

	userHandler := NewUserHandler(d.UserService)
	authHandler := NewAuthHandler(d.UserService)
	conversationHandler := NewConversationHandler(d.ConversationService)
	searchHandler := NewSearchHandler(d.SearchService)
	chatHandler := NewChatHandler(d.ChatService, d.UserService)
	speechHandler := NewSpeechHandler(d.SpeechService, d.MaxUploadBytes)
	auth := middleware.AuthMiddleware(d.UserService)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	// 无需认证的路由
	r.POST("/register", userHandler.Register)
	r.POST("/token", userHandler.Token)
	r.POST("/token/refresh", authHandler.RefreshToken)
	r.POST("/synthesize", speechHandler.Synthesize)
	r.POST("/transcribe", speechHandler.Transcribe)
	// WebSocket 在 Handle 内部通过查询参数认证
	r.GET("/chat/ws", chatHandler.Handle)

	// 需要认证的路由
	authed := r.Group("/")
	authed.Use(auth)
	{
		authed.POST("/logout", userHandler.Logout)
		authed.GET("/users/me", userHandler.GetProfile)
		authed.POST("/chat", chatHandler.Chat)
	}

	conversations := r.Group("/conversations")
	conversations.Use(auth)
	{
		conversations.GET("", conversationHandler.ListConversations)
		conversations.GET("/search", searchHandler.SearchHistory)
		conversations.GET("/:id/messages", conversationHandler.GetMessages)
		conversations.PUT("/:id", conversationHandler.Rename)
		conversations.DELETE("/:id", conversationHandler.Delete)
	}

	return r
}
