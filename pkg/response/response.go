// Package response renders the JSON envelope shared by guest and staff endpoints.
package response

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/blotter/pkg/errors"
)

// Response is the envelope: success flag plus either data or error.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the client-facing part of an AppError.
type ErrorInfo struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// Meta carries pagination for list endpoints.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// Paginate builds Meta for a page of a result set of total rows.
func Paginate(page, perPage int, total int64) *Meta {
	meta := &Meta{Page: page, PerPage: perPage, Total: int(total)}
	if perPage > 0 {
		meta.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return meta
}

func write(c *gin.Context, status int, body Response) {
	c.JSON(status, body)
}

// Success writes data with the given status.
func Success(c *gin.Context, status int, data any) {
	write(c, status, Response{Success: true, Data: data})
}

// SuccessWithMeta writes a page of data.
func SuccessWithMeta(c *gin.Context, status int, data any, meta *Meta) {
	write(c, status, Response{Success: true, Data: data, Meta: meta})
}

// Error maps err to its AppError and writes it. Anything that is not an
// AppError is reported as an internal error. A retry hint is mirrored into
// the Retry-After header in whole seconds, rounded up.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	info := &ErrorInfo{Code: appErr.Code, Message: appErr.Message}
	if appErr.RetryAfter > 0 {
		info.RetryAfterSeconds = int(math.Ceil(appErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(info.RetryAfterSeconds))
	}

	write(c, status, Response{Error: info})
}
