package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// RateLimit throttles requests per client IP using the provided limiter.
// Used on the login endpoint to slow down credential stuffing.
func RateLimit(limiterInstance *limiter.Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()

		lctx, err := limiterInstance.Get(c.Request.Context(), ip)
		if err != nil {
			logger.Error("rate limit check failed", zap.String("ip", ip), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if lctx.Reached {
			logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.Int64("limit", lctx.Limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
			return
		}

		c.Next()
	}
}
