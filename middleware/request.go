package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"grievance-management-api/apperr"
	"grievance-management-api/events"
	"grievance-management-api/monitor"
)

const RequestIDHeader = "X-Request-ID"

func zerologFrom(c *gin.Context) *zerolog.Logger {
	return zerolog.Ctx(c.Request.Context())
}

// RequestID tags the request with an id (reusing a sane incoming one), echoes
// it in the response and carries it into the request logger and published events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		logger := log.Logger.With().Str("request_id", id).Logger()
		ctx := context.WithValue(c.Request.Context(), events.RequestIDContextKey, id)
		c.Request = c.Request.WithContext(logger.WithContext(ctx))
		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		logger := zerologFrom(c)
		evt := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			evt = logger.Error()
		case status >= http.StatusBadRequest:
			evt = logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("size", c.Writer.Size()).
			Msg("request")
	}
}

// Metrics records request counts and latency per matched route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		monitor.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		monitor.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Recovery turns a panic into the standard JSON 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				zerologFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				if c.Writer.Written() {
					c.Abort()
					return
				}
				RespondError(c, apperr.New(apperr.KindInternal, "Something went wrong"))
			}
		}()
		c.Next()
	}
}

// NotFound is the fallback for unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorBody{
		Error:   "Endpoint not found",
		Message: "Cannot " + c.Request.Method + " " + c.Request.URL.Path,
	})
}
