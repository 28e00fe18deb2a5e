package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/service"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// DeprecatedSessionHeader is still accepted from older clients. New clients
// must send the token in the Authorization header.
const DeprecatedSessionHeader = "X-Session-Token"

// JWT protects routes by requiring a valid access token.
func JWT(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or malformed authorization header"))
			c.Abort()
			return
		}

		if c.GetHeader("Authorization") == "" {
			logger.Warn("deprecated session header used",
				zap.String("header", DeprecatedSessionHeader),
				zap.String("path", c.Request.URL.Path))
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// extractToken prefers the Authorization bearer header and falls back to the
// deprecated session header.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return c.GetHeader(DeprecatedSessionHeader)
}
