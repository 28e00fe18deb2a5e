package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context) (*models.Settings, error)
	Upsert(ctx context.Context, settings *models.Settings) error
}

// SettingsUpdateRequest is the payload for editing institution settings.
type SettingsUpdateRequest struct {
	SchoolName        string `json:"school_name" validate:"required"`
	SchoolAddress     string `json:"school_address" validate:"required"`
	RegistrarName     string `json:"registrar_name" validate:"required"`
	PrincipalName     string `json:"principal_name" validate:"required"`
	CurrentSchoolYear string `json:"current_school_year" validate:"required"`
	CurrentSemester   string `json:"current_semester" validate:"required"`
}

// SettingsService manages the singleton institution configuration.
type SettingsService struct {
	repo      settingsRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(repo settingsRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SettingsService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Get returns the current settings. A missing row yields defaults so a fresh
// deployment works before anyone saves.
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Settings{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	return settings, nil
}

// Update replaces the settings row and invalidates cached dashboards, since
// the current term feeds the dashboard summary.
func (s *SettingsService) Update(ctx context.Context, req SettingsUpdateRequest) (*models.Settings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	settings := &models.Settings{
		SchoolName:        req.SchoolName,
		SchoolAddress:     req.SchoolAddress,
		RegistrarName:     req.RegistrarName,
		PrincipalName:     req.PrincipalName,
		CurrentSchoolYear: req.CurrentSchoolYear,
		CurrentSemester:   req.CurrentSemester,
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	}

	s.logger.Info("settings updated", zap.String("school_year", settings.CurrentSchoolYear), zap.String("semester", settings.CurrentSemester))
	return settings, nil
}
