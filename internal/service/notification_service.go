package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService exposes per-user notifications.
type NotificationService struct {
	repo   notificationRepository
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// List returns notifications for the user, newest first.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns how many notifications the user has not read yet.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one notification as read. Users can only touch their own.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	ok, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead marks every notification for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
