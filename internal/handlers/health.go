package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/monitoring"
	"github.com/charlesng35/blotter/pkg/response"
)

// Health reports readiness of the record store and other registered probes.
// Degraded dependencies still answer 200 so the portal keeps serving guests;
// only a down probe fails the check.
func Health(prober *monitoring.Prober) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := prober.Evaluate(requestContext(c))
		code := http.StatusOK
		if report.Status == monitoring.StatusDown {
			code = http.StatusServiceUnavailable
		}
		response.Success(c, code, report)
	}
}
