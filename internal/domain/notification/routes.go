package notification

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the user-facing notification routes
func RegisterRoutes(protected *gin.RouterGroup, handler *Handler) {
	notifGroup := protected.Group("/notifications")
	{
		notifGroup.GET("", handler.GetNotifications)
		notifGroup.GET("/unread-count", handler.GetUnreadCount)
		notifGroup.PATCH("/:id/read", handler.MarkAsRead)
		notifGroup.POST("/read-all", handler.MarkAllAsRead)
		notifGroup.DELETE("/:id", handler.DeleteNotification)
		notifGroup.POST("/:id/archive", handler.ArchiveNotification)
	}
}

// RegisterInternalRoutes registers producer routes behind the internal token.
func RegisterInternalRoutes(internal *gin.RouterGroup, handler *Handler) {
	internal.POST("/notifications", handler.CreateNotification)
}
