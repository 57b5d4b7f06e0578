package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/logger"
	"github.com/charlesng35/blotter/pkg/response"
)

// Recovery turns a handler panic into a 500. The log line carries the route
// template, never the concrete path, since guest paths embed the link token.
// http.ErrAbortHandler is re-panicked so net/http drops the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				handlePanic(c, v)
			}
		}()
		c.Next()
	}
}

func handlePanic(c *gin.Context, v any) {
	if err, ok := v.(error); ok && err == http.ErrAbortHandler {
		panic(v)
	}

	logger.WithModule("http").Error("handler panicked",
		zap.String("method", c.Request.Method),
		zap.String("route", routeLabel(c)),
		zap.String("panic", fmt.Sprint(v)),
		zap.Stack("stack"),
	)

	c.Abort()
	if c.Writer.Written() {
		return
	}
	response.Error(c, errors.ErrInternalServer)
}

// NotFoundHandler answers unknown routes with the JSON 404 envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound)
}
