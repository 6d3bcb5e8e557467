package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"snacktrack-backend/internal/apperr"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId"`
	Path      string            `json:"path"`
	Timestamp time.Time         `json:"timestamp"`
}

// AbortWithError writes err as an ErrorResponse and stops the chain.
// Errors that are not *apperr.Error are reported as internal errors.
func AbortWithError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("code", appErr.Code).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: c.GetString(RequestIDKey),
		Path:      c.Request.URL.Path,
		Timestamp: time.Now().UTC(),
	})
}

// NoRoute answers unknown paths with ROUTE_NOT_FOUND.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		AbortWithError(c, apperr.New(apperr.CodeRouteNotFound, "route "+c.Request.Method+" "+c.Request.URL.Path+" not found", http.StatusNotFound))
	}
}
