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

// NotificationHandler exposes per-user notification endpoints.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List returns the current user's notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.NotificationFilter{
		UserID:     claims.UserID,
		UnreadOnly: c.Query("unread") == "true",
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	notifications, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, pagination)
}

// UnreadCount returns the unread notification count for badge polling.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead marks one notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead marks every notification for the user as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkAllRead(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
