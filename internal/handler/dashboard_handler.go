package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openregistrar/registrar-api/internal/service"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/response"
)

// DashboardHandler serves the landing-page summary.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Dashboard summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
