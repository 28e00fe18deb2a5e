package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByStudentNo(ctx context.Context, studentNo string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// StudentService handles student record use cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students matching the filter with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByUserID returns the student record bound to an account, used for
// self-service lookups.
func (s *StudentService) GetByUserID(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no student record linked to this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a new student record.
func (s *StudentService) Create(ctx context.Context, req models.StudentCreateRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	taken, err := s.repo.ExistsByStudentNo(ctx, req.StudentNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student number is already in use")
	}

	student := &models.Student{
		StudentNo:  req.StudentNo,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Email:      req.Email,
		Gender:     req.Gender,
		Address:    req.Address,
		Phone:      req.Phone,
		Course:     req.Course,
		YearLevel:  req.YearLevel,
		Active:     true,
	}
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth date must be formatted as YYYY-MM-DD")
		}
		student.BirthDate = &parsed
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("student_no", student.StudentNo))
	return student, nil
}

// Update edits an existing student record. The student number is immutable.
func (s *StudentService) Update(ctx context.Context, id string, req models.StudentUpdateRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student.FirstName = req.FirstName
	student.MiddleName = req.MiddleName
	student.LastName = req.LastName
	student.Email = req.Email
	student.Gender = req.Gender
	student.Address = req.Address
	student.Phone = req.Phone
	student.Course = req.Course
	student.YearLevel = req.YearLevel
	if req.Active != nil {
		student.Active = *req.Active
	}
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth date must be formatted as YYYY-MM-DD")
		}
		student.BirthDate = &parsed
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Deactivate soft-deletes a student record.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}
