package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/openregistrar/registrar-api/internal/middleware"
	"github.com/openregistrar/registrar-api/internal/models"
)

// currentClaims extracts the authenticated JWT claims from the gin context.
func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
