package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/models"
)

const callerKey = "caller"

// SessionResolver verifies a bearer token and returns the identity it carries.
type SessionResolver interface {
	ResolveSession(token string) (authz.Caller, error)
}

// AuthMiddleware validates the bearer token and stores the caller in the context.
func AuthMiddleware(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondError(c, apperr.New(apperr.KindUnauthenticated, "Access token required"))
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			RespondError(c, apperr.New(apperr.KindInvalidToken, "Invalid authorization header format"))
			return
		}

		caller, err := sessions.ResolveSession(tokenString)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(callerKey, caller)
		logger := zerologFrom(c).With().Uint("user_id", caller.UserID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// OptionalAuth stores the caller when the request carries a valid bearer
// token and lets anonymous or badly authenticated requests through unchanged.
func OptionalAuth(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil {
			c.Next()
			return
		}
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		if caller, err := sessions.ResolveSession(tokenString); err == nil {
			c.Set(callerKey, caller)
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			RespondError(c, apperr.New(apperr.KindUnauthenticated, "Authentication required"))
			return
		}

		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		RespondError(c, apperr.Forbidden("Insufficient permissions"))
	}
}

// CallerFrom returns the identity stored by AuthMiddleware.
func CallerFrom(c *gin.Context) (authz.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return authz.Caller{}, false
	}
	caller, ok := v.(authz.Caller)
	return caller, ok
}
