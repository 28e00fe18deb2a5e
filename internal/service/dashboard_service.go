package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:summary"

type dashboardStudentRepository interface {
	CountActive(ctx context.Context) (int, error)
}

type dashboardEnrollmentRepository interface {
	CountActiveForTerm(ctx context.Context, schoolYear, semester string) (int, error)
}

type dashboardRequestRepository interface {
	CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error)
}

type dashboardNotificationRepository interface {
	CountUnread(ctx context.Context, userID string) (int, error)
}

// DashboardService aggregates the landing-page summary, cached per term.
type DashboardService struct {
	students      dashboardStudentRepository
	enrollments   dashboardEnrollmentRepository
	requests      dashboardRequestRepository
	notifications dashboardNotificationRepository
	settings      settingsRepository
	cache         *CacheService
	cacheTTL      time.Duration
	logger        *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(students dashboardStudentRepository, enrollments dashboardEnrollmentRepository, requests dashboardRequestRepository, notifications dashboardNotificationRepository, settings settingsRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &DashboardService{
		students:      students,
		enrollments:   enrollments,
		requests:      requests,
		notifications: notifications,
		settings:      settings,
		cache:         cache,
		cacheTTL:      cacheTTL,
		logger:        logger,
	}
}

// Summary returns the aggregate counts. The term-wide portion is served from
// cache; the per-user unread count is always fetched fresh.
func (s *DashboardService) Summary(ctx context.Context, userID string) (*models.DashboardSummary, error) {
	var summary models.DashboardSummary
	hit, err := s.cache.Get(ctx, dashboardCacheKey, &summary)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.Error(err))
	}

	if !hit {
		built, err := s.build(ctx)
		if err != nil {
			return nil, err
		}
		summary = *built
		if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}

	if userID != "" {
		unread, err := s.notifications.CountUnread(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to count unread notifications", zap.Error(err))
		} else {
			summary.UnreadNotifications = unread
		}
	}

	return &summary, nil
}

func (s *DashboardService) build(ctx context.Context) (*models.DashboardSummary, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	if settings == nil {
		settings = &models.Settings{}
	}

	students, err := s.students.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}

	enrollments := 0
	if settings.CurrentSchoolYear != "" {
		enrollments, err = s.enrollments.CountActiveForTerm(ctx, settings.CurrentSchoolYear, settings.CurrentSemester)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
	}

	byStatus, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}

	return &models.DashboardSummary{
		TotalActiveStudents: students,
		EnrollmentsThisTerm: enrollments,
		RequestsByStatus:    byStatus,
		SchoolYear:          settings.CurrentSchoolYear,
		Semester:            settings.CurrentSemester,
		GeneratedAt:         time.Now().UTC(),
	}, nil
}
