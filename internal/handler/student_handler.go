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

// StudentHandler exposes student record endpoints.
type StudentHandler struct {
	service *service.StudentService
	export  *service.ExportService
	photos  *service.PhotoService
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(svc *service.StudentService, exportSvc *service.ExportService, photoSvc *service.PhotoService) *StudentHandler {
	return &StudentHandler{service: svc, export: exportSvc, photos: photoSvc}
}

func studentFilterFromQuery(c *gin.Context) models.StudentFilter {
	filter := models.StudentFilter{
		Search:    c.Query("search"),
		Course:    c.Query("course"),
		YearLevel: c.Query("year_level"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return filter
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or student number"
// @Param course query string false "Filter by course"
// @Param year_level query string false "Filter by year level"
// @Param active query bool false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	students, pagination, err := h.service.List(c.Request.Context(), studentFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get one student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Me returns the student record linked to the authenticated account.
func (h *StudentHandler) Me(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.service.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body models.StudentCreateRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req models.StudentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.StudentUpdateRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req models.StudentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Deactivate godoc
// @Summary Deactivate student
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export student list
// @Tags Students
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	payload, contentType, filename, err := h.export.ExportStudents(c.Request.Context(), studentFilterFromQuery(c), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, payload)
}

// UploadPhoto stores a profile photo for a student.
func (h *StudentHandler) UploadPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	student, err := h.photos.Upload(c.Request.Context(), c.Param("id"),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Photo streams the stored profile photo.
func (h *StudentHandler) Photo(c *gin.Context) {
	file, contentType, err := h.photos.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read photo"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

// DeletePhoto removes the stored profile photo.
func (h *StudentHandler) DeletePhoto(c *gin.Context) {
	if err := h.photos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
