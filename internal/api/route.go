package api

import (
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/api/middleware"
	"Clubhouse/internal/pkg/logger"
	"Clubhouse/internal/pkg/security"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, tm *security.TokenManager, cfg *config.Config) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowOrigins))
	logger.SetupGin(r, cfg.Logstash)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		imGroup.Use(middleware.AuthMiddleware(tm))
		{
			imGroup.GET("/unread", group.IMHandler.GetUnread)

			convGroup := imGroup.Group("/conversations")
			{
				convGroup.POST("/direct", group.IMHandler.CreateDirect)
				convGroup.POST("/group", group.IMHandler.CreateGroup)
				convGroup.GET("", group.IMHandler.ListConversations)
				convGroup.GET("/search", group.IMHandler.SearchConversations)

				convGroup.PUT("/:id/name", group.IMHandler.RenameConversation)
				convGroup.GET("/:id/participants", group.IMHandler.ListParticipants)
				convGroup.POST("/:id/participants", group.IMHandler.AddParticipant)
				convGroup.DELETE("/:id/participants/:user_id", group.IMHandler.RemoveParticipant)
				convGroup.POST("/:id/leave", group.IMHandler.LeaveConversation)

				convGroup.POST("/:id/messages", group.IMHandler.SendMessage)
				convGroup.GET("/:id/messages", group.IMHandler.GetMessages)
				convGroup.DELETE("/:id/messages/:message_id", group.IMHandler.DeleteMessage)
				convGroup.POST("/:id/read", group.IMHandler.MarkRead)
			}
		}
	}

	return r
}
