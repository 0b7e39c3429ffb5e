package middleware

import (
	"github.com/gin-gonic/gin"

	"finchat/internal/cache"
	"finchat/internal/transport/http/response"
)

// RateLimit rejects clients exceeding the per-minute budget for the
// given scope. Authenticated callers are keyed by user id, anonymous
// ones by client IP.
func RateLimit(limiter *cache.RateLimiter, scope string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := UserID(c)
		if clientID == "" {
			clientID = c.ClientIP()
		}

		if !limiter.Allow(c.Request.Context(), scope, clientID, limit) {
			response.Error(c, 429, response.CodeRateLimited, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
