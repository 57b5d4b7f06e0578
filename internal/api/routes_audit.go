package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, svc Services) error {
	handler, err := handlers.NewAuditHandler(svc.Audit)
	if err != nil {
		return err
	}
	api.GET("/cases/:caseID/audit", handler.ListForCase)
	return nil
}
