package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/handlers"
)

// registerNotificationRoutes mounts the inbox under the authenticated group.
// The stream accepts its token as ?access_token on the upgrade request.
func registerNotificationRoutes(api *gin.RouterGroup, svc Services) error {
	handler, err := handlers.NewNotificationHandler(svc.Notifications, svc.Hub)
	if err != nil {
		return err
	}

	inbox := api.Group("/notifications")
	inbox.GET("", handler.List)
	inbox.GET("/unread-count", handler.UnreadCount)
	inbox.GET("/stream", handler.Stream)
	inbox.POST("/:id/read", handler.MarkRead)
	return nil
}
