package handler

import (
	"github.com/gin-gonic/gin"

	"shopchat-go/internal/middleware"
	"shopchat-go/internal/service"
	"shopchat-go/pkg/log"
	"shopchat-go/pkg/token"
)

// Deps 汇总路由需要的服务。可选服务为 nil 时对应接口返回 503。
type Deps struct {
	ChatService    service.ChatService
	ArchiveService service.ArchiveService
	SearchService  service.SearchService
	ExportService  service.ExportService
	JWTManager     *token.JWTManager
	DefaultUserID  string
	LogRing        *log.Ring
}

// NewRouter 创建 gin 引擎并注册 /api/v1 下的全部路由。
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	auth := middleware.AuthMiddleware(d.JWTManager, d.DefaultUserID)
	chatHandler := NewChatHandler(d.ChatService)
	archiveHandler := NewArchiveHandler(d.ArchiveService, d.SearchService, d.ExportService)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/guest", NewAuthHandler(d.JWTManager).Guest)

		chat := apiV1.Group("/chat")
		chat.Use(auth)
		{
			chat.GET("/messages", chatHandler.GetMessages)
			chat.POST("/messages", chatHandler.SendMessage)
			chat.PUT("/messages/:id/feedback", chatHandler.SetFeedback)
			chat.GET("/settings", chatHandler.GetSettings)
			chat.PUT("/settings", chatHandler.UpdateSettings)
			chat.GET("/stream", NewStreamHandler(d.ChatService).Handle)
			chat.GET("/history", archiveHandler.History)
			chat.GET("/search", archiveHandler.Search)
			chat.POST("/export", archiveHandler.Export)
		}

		debug := apiV1.Group("/debug")
		debug.Use(auth)
		{
			debugHandler := NewDebugHandler(d.LogRing)
			debug.GET("/logs", debugHandler.Logs)
			debug.DELETE("/logs", debugHandler.Clear)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(auth, middleware.AdminAuthMiddleware())
		{
			admin.GET("/conversations", NewAdminHandler(d.ChatService).ListConversations)
		}
	}
	return r
}
