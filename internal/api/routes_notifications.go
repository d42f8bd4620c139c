package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	users := api.Group("/users/:id/notifications")
	{
		users.GET("", handler.List)
		users.POST("", handler.Create)
		users.GET("/unread-count", handler.UnreadCount)
		users.POST("/read-all", handler.MarkAllRead)
	}

	api.POST("/notifications/:id/read", handler.MarkRead)
}
