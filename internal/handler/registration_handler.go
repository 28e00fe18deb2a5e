package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openregistrar/registrar-api/internal/models"
	"github.com/openregistrar/registrar-api/internal/service"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/response"
)

// RegistrationHandler exposes the registration wizard endpoints.
type RegistrationHandler struct {
	service *service.RegistrationService
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Start godoc
// @Summary Start a registration draft
// @Tags Registration
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Start(c *gin.Context) {
	draft, err := h.service.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, draft)
}

// Get godoc
// @Summary Get a registration draft
// @Tags Registration
// @Produce json
// @Param id path string true "Draft ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	draft, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// SaveFields godoc
// @Summary Save draft field groups
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body models.RegistrationStepRequest true "Field groups"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [patch]
func (h *RegistrationHandler) SaveFields(c *gin.Context) {
	var req models.RegistrationStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid draft payload"))
		return
	}
	draft, err := h.service.SaveFields(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Next advances the wizard one step.
func (h *RegistrationHandler) Next(c *gin.Context) {
	draft, err := h.service.Next(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Back moves the wizard one step back.
func (h *RegistrationHandler) Back(c *gin.Context) {
	draft, err := h.service.Back(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Submit godoc
// @Summary Submit a registration draft
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body models.RegistrationSubmitRequest true "Submit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/submit [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req models.RegistrationSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submit payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Cancel discards a draft.
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
