package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openregistrar/registrar-api/internal/service"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/response"
)

// SettingsHandler exposes the institution settings endpoints.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler creates a new handler.
func NewSettingsHandler(svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// Get returns the current institution settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.service.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Update godoc
// @Summary Update institution settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body service.SettingsUpdateRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req service.SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid settings payload"))
		return
	}
	settings, err := h.service.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
