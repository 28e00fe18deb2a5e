package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openregistrar/registrar-api/internal/models"
	"github.com/openregistrar/registrar-api/internal/service"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/response"
)

// RequestHandler exposes the document request workflow endpoints.
type RequestHandler struct {
	service *service.RequestService
}

// NewRequestHandler creates a new handler.
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// Create godoc
// @Summary Open a document request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body models.RequestCreateRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.RequestCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	request, err := h.service.Create(c.Request.Context(), req, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List document requests
// @Tags Requests
// @Produce json
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by document type"
// @Param student_id query string false "Filter by student"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.RequestFilter{
		StudentID: c.Query("student_id"),
		Status:    models.RequestStatus(c.Query("status")),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("type"); raw != "" {
		docType, _ := models.ParseDocumentType(raw)
		filter.Type = docType
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	requests, pagination, err := h.service.List(c.Request.Context(), filter, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get loads a request with its student details and attachments. Students
// only ever see their own requests.
func (h *RequestHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	attachments, err := h.service.Attachments(c.Request.Context(), detail.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil, map[string]interface{}{
		"attachments": attachments,
	})
}

// Forward godoc
// @Summary Forward a pending request to payment
// @Description The document type is repeated for confirmation; a mismatch
// with the stored request aborts the transition.
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body models.RequestForwardRequest true "Forward payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests/{id}/forward [post]
func (h *RequestHandler) Forward(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.RequestForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid forward payload"))
		return
	}
	request, err := h.service.Forward(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve confirms payment and approves the request.
func (h *RequestHandler) Approve(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Reject closes a request with a reason.
func (h *RequestHandler) Reject(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.RequestRejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reject payload"))
		return
	}
	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Finalize generates the document and marks the request ready for pickup.
func (h *RequestHandler) Finalize(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Finalize(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// DownloadToken godoc
// @Summary Get a signed download link for the generated document
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests/{id}/download [get]
func (h *RequestHandler) DownloadToken(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token, expiresAt, err := h.service.DownloadToken(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"url":        "/api/v1/documents/download?token=" + token,
	}, nil)
}

// Download streams the generated document using a signed token. No auth
// middleware: the token itself is the credential.
func (h *RequestHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.OpenResult(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document"))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=document.pdf")
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}

// AddAttachment stores a supporting file uploaded with a request.
func (h *RequestHandler) AddAttachment(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	attachment, err := h.service.AddAttachment(c.Request.Context(), c.Param("id"),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size, file,
		claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}
