package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/handlers"
)

func registerGuestLinkRoutes(api *gin.RouterGroup, svc Services) error {
	handler, err := handlers.NewGuestLinkHandler(svc.Links)
	if err != nil {
		return err
	}

	cases := api.Group("/cases/:caseID/guest-links")
	{
		cases.POST("", handler.Issue)
		cases.GET("", handler.List)
	}

	links := api.Group("/guest-links/:id")
	{
		links.POST("/toggle", handler.Toggle)
		links.POST("/rotate-pin", handler.RotatePIN)
	}
	return nil
}
