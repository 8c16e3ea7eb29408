package middleware

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"grievance-management-api/apperr"
)

var exposeDebug atomic.Bool

// SetExposeErrors controls whether failure responses carry the underlying
// error text in a "debug" field. Off in production.
func SetExposeErrors(enabled bool) {
	exposeDebug.Store(enabled)
}

// ErrorBody is the JSON shape of every failure response.
type ErrorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Details []apperr.FieldError `json:"details,omitempty"`
	Debug   string              `json:"debug,omitempty"`
}

// RespondError writes err as a JSON failure response and aborts the chain.
func RespondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("Something went wrong", err)
	}

	status := appErr.Kind.HTTPStatus()
	body := ErrorBody{
		Error:   appErr.Kind.Title(),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	if exposeDebug.Load() && appErr.Err != nil {
		body.Debug = appErr.Err.Error()
	}

	logger := zerolog.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	c.AbortWithStatusJSON(status, body)
}
