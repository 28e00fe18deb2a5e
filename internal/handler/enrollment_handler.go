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

// EnrollmentHandler exposes the enrollment wizard and enrollment records.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// StartDraft godoc
// @Summary Open an enrollment draft for an existing student
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body models.EnrollmentStartRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/drafts [post]
func (h *EnrollmentHandler) StartDraft(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.EnrollmentStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	draft, err := h.service.StartDraft(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, draft)
}

// StartDraftForNewStudent godoc
// @Summary Open an enrollment draft for a brand new student
// @Description Creates the student record and account inline. The generated
// credentials are returned once in the response meta and never stored.
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body models.EnrollmentNewStudentRequest true "New student payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments/drafts/new-student [post]
func (h *EnrollmentHandler) StartDraftForNewStudent(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.EnrollmentNewStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	draft, credentials, err := h.service.StartDraftForNewStudent(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, draft, nil, map[string]interface{}{
		"generated_credentials": credentials,
	})
}

// GetDraft loads a draft with its selections.
func (h *EnrollmentHandler) GetDraft(c *gin.Context) {
	draft, err := h.service.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// DraftByStudent godoc
// @Summary Find the open draft for a student
// @Tags Enrollment
// @Produce json
// @Param student_id query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/drafts [get]
func (h *EnrollmentHandler) DraftByStudent(c *gin.Context) {
	studentID := c.Query("student_id")
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id is required"))
		return
	}
	draft, err := h.service.DraftForStudent(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Forward advances the wizard one state.
func (h *EnrollmentHandler) Forward(c *gin.Context) {
	draft, err := h.service.Forward(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Backward moves the wizard one state back.
func (h *EnrollmentHandler) Backward(c *gin.Context) {
	draft, err := h.service.Backward(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// AddSubject godoc
// @Summary Add a subject to the draft
// @Description Idempotent by subject code; re-adding a selected subject is a no-op.
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body models.AddSubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/drafts/{id}/subjects [post]
func (h *EnrollmentHandler) AddSubject(c *gin.Context) {
	var req models.AddSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}
	draft, err := h.service.AddSubject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// RemoveSubject drops a subject selection.
func (h *EnrollmentHandler) RemoveSubject(c *gin.Context) {
	draft, err := h.service.RemoveSubject(c.Request.Context(), c.Param("id"), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Complete turns a reviewed draft into an enrollment.
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.service.Complete(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// CancelDraft discards a draft.
func (h *EnrollmentHandler) CancelDraft(c *gin.Context) {
	if err := h.service.CancelDraft(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List enrollments
// @Tags Enrollment
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param school_year query string false "Filter by school year"
// @Param semester query string false "Filter by semester"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		StudentID:  c.Query("student_id"),
		SchoolYear: c.Query("school_year"),
		Semester:   c.Query("semester"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	enrollments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get loads one enrollment with its subject lines.
func (h *EnrollmentHandler) Get(c *gin.Context) {
	detail, err := h.service.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
