package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/app"
	"github.com/charlesng35/blotter/internal/handlers"
	"github.com/charlesng35/blotter/internal/middleware"
)

// multipartOverhead leaves room for part headers and form fields on top of the file.
const multipartOverhead = 64 << 10

func registerGuestRoutes(r *gin.Engine, cfg *app.Config, svc Services) error {
	handler, err := handlers.NewGuestHandler(svc.Access, svc.Evidence, handlers.GuestCookieConfig{
		TTL:    cfg.Guest.SessionTTL,
		Secure: cfg.Guest.CookieSecure,
	})
	if err != nil {
		return err
	}

	guest := r.Group("/guest/:token")
	guest.Use(middleware.NoStore())
	if svc.RequestLimiter != nil {
		guest.Use(middleware.RateLimit(svc.RequestLimiter))
	}
	{
		guest.GET("", handler.Describe)
		guest.POST("/verify", handler.Verify)
		guest.GET("/evidence", handler.ListEvidence)
		guest.POST("/evidence",
			middleware.BodyLimit(svc.Evidence.MaxUploadSize()+multipartOverhead),
			middleware.RequestTimeout(cfg.Server.UploadTimeout),
			handler.Upload,
		)
		guest.DELETE("/evidence/:id", handler.DeleteEvidence)
	}
	return nil
}
