package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"finchat/internal/pkg/jwtutil"
	"finchat/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextEmailKey  = "email"
)

// OptionalJWT attaches the caller identity when a valid bearer token is
// present and leaves the request anonymous otherwise. Chat endpoints
// accept both kinds of caller.
func OptionalJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, secret); ok {
			c.Set(ContextUserIDKey, claims.UserID)
			c.Set(ContextEmailKey, claims.Email)
		}
		c.Next()
	}
}

// RequireJWT rejects requests without a valid bearer token.
func RequireJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		claims, ok := bearerClaims(c, secret)
		if !ok {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextEmailKey, claims.Email)
		c.Next()
	}
}

func bearerClaims(c *gin.Context, secret string) (*jwtutil.Claims, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	claims, err := jwtutil.ParseToken(secret, token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// UserID returns the authenticated user id, empty for anonymous callers.
func UserID(c *gin.Context) string {
	id, _ := c.Get(ContextUserIDKey)
	s, _ := id.(string)
	return s
}
