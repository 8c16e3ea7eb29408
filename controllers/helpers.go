package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/middleware"
	"grievance-management-api/services"
)

func respondError(c *gin.Context, err error) {
	middleware.RespondError(c, err)
}

// currentCaller reads the authenticated identity; a missing one means the
// route was mounted without AuthMiddleware.
func currentCaller(c *gin.Context) (authz.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthenticated, "Authentication required"))
	}
	return caller, ok
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperr.Validation("Invalid ID", apperr.FieldError{Field: name, Message: "Must be a positive integer"}))
		return 0, false
	}
	return uint(id), true
}

// bindJSON decodes the body, reporting decode and binding failures as
// validation errors.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.Validation("Request body too large"))
			return false
		}
		respondError(c, services.ValidationError(err))
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, apperr.Validation("Invalid query parameter", apperr.FieldError{Field: name, Message: "Must be an integer"}))
		return 0, false
	}
	return v, true
}

func queryUint(c *gin.Context, name string) (*uint, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(c, apperr.Validation("Invalid query parameter", apperr.FieldError{Field: name, Message: "Must be a positive integer"}))
		return nil, false
	}
	id := uint(v)
	return &id, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		respondError(c, apperr.Validation("Invalid query parameter", apperr.FieldError{Field: name, Message: "Must be true or false"}))
		return nil, false
	}
	return &v, true
}
