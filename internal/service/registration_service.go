package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type registrationRepository interface {
	Create(ctx context.Context, draft *models.RegistrationDraft) error
	FindByID(ctx context.Context, id string) (*models.RegistrationDraft, error)
	Update(ctx context.Context, draft *models.RegistrationDraft) error
	Delete(ctx context.Context, id string) error
}

type registrationStudentRepository interface {
	ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error)
	CreateWithUser(ctx context.Context, student *models.Student, user *models.User) error
}

type registrationUserRepository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RegistrationService drives the five-step registration wizard. The draft
// lives server-side; clients only send field groups and move requests.
type RegistrationService struct {
	drafts    registrationRepository
	students  registrationStudentRepository
	users     registrationUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(drafts registrationRepository, students registrationStudentRepository, users registrationUserRepository, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RegistrationService{drafts: drafts, students: students, users: users, validator: validate, logger: logger}
}

// Start opens a new draft at the first step.
func (s *RegistrationService) Start(ctx context.Context) (*models.RegistrationDraft, error) {
	draft := &models.RegistrationDraft{CurrentStep: models.RegistrationFirstStep}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start registration")
	}
	return draft, nil
}

// Get loads a draft by ID.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationDraft, error) {
	draft, err := s.drafts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration draft not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration draft")
	}
	return draft, nil
}

// SaveFields merges the provided field groups into the draft. Partial, invalid
// or empty values are all accepted here; validation happens only at submit.
func (s *RegistrationService) SaveFields(ctx context.Context, id string, req models.RegistrationStepRequest) (*models.RegistrationDraft, error) {
	draft, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Personal != nil {
		draft.Personal = *req.Personal
	}
	if req.Family != nil {
		draft.Family = *req.Family
	}
	if req.AcademicCurrent != nil {
		draft.AcademicCurrent = *req.AcademicCurrent
	}
	if req.AcademicHistory != nil {
		draft.AcademicHistory = *req.AcademicHistory
	}
	if req.Credentials != nil {
		draft.Credentials = *req.Credentials
	}

	if err := s.drafts.Update(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save registration draft")
	}
	return draft, nil
}

// Next advances the draft one step, clamped at the last step.
func (s *RegistrationService) Next(ctx context.Context, id string) (*models.RegistrationDraft, error) {
	return s.move(ctx, id, 1)
}

// Back moves the draft one step back, clamped at the first step.
func (s *RegistrationService) Back(ctx context.Context, id string) (*models.RegistrationDraft, error) {
	return s.move(ctx, id, -1)
}

func (s *RegistrationService) move(ctx context.Context, id string, delta int) (*models.RegistrationDraft, error) {
	draft, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	step := draft.CurrentStep + delta
	if step < models.RegistrationFirstStep {
		step = models.RegistrationFirstStep
	}
	if step > models.RegistrationLastStep {
		step = models.RegistrationLastStep
	}
	if step == draft.CurrentStep {
		return draft, nil
	}
	draft.CurrentStep = step
	if err := s.drafts.Update(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move registration draft")
	}
	return draft, nil
}

// Cancel discards a draft.
func (s *RegistrationService) Cancel(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.drafts.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard registration draft")
	}
	return nil
}

// Submit validates the accumulated draft and creates the student together
// with its account. The password pair is compared before anything else runs;
// a mismatch leaves the draft and the database untouched.
func (s *RegistrationService) Submit(ctx context.Context, id string, req models.RegistrationSubmitRequest) (*models.RegistrationResult, error) {
	if req.Password != req.ConfirmPassword {
		return nil, appErrors.Clone(appErrors.ErrValidation, "passwords do not match")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submit payload")
	}

	draft, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.CurrentStep != models.RegistrationLastStep {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "draft must reach the final step before submission")
	}
	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(draft.Credentials.Email)
	emailTaken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if emailTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	}

	studentNo := generateStudentNo(time.Now().UTC())
	for attempt := 0; attempt < 5; attempt++ {
		taken, err := s.students.ExistsByStudentNo(ctx, studentNo)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student number")
		}
		if !taken {
			break
		}
		studentNo = generateStudentNo(time.Now().UTC())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	fullName := strings.TrimSpace(draft.Personal.FirstName + " " + draft.Personal.LastName)
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         models.RoleStudent,
		Active:       true,
	}

	student := &models.Student{
		StudentNo:  studentNo,
		FirstName:  draft.Personal.FirstName,
		MiddleName: draft.Personal.MiddleName,
		LastName:   draft.Personal.LastName,
		Email:      email,
		Gender:     draft.Personal.Gender,
		Address:    draft.Personal.Address,
		Phone:      draft.Personal.Phone,
		Course:     draft.AcademicCurrent.Course,
		YearLevel:  draft.AcademicCurrent.YearLevel,
		Active:     true,
	}
	if draft.Personal.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", draft.Personal.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth date must be formatted as YYYY-MM-DD")
		}
		student.BirthDate = &parsed
	}

	if err := s.students.CreateWithUser(ctx, student, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student account")
	}

	if err := s.drafts.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to remove submitted registration draft", zap.String("draft_id", id), zap.Error(err))
	}

	s.logger.Info("registration submitted",
		zap.String("student_id", student.ID),
		zap.String("student_no", student.StudentNo))

	return &models.RegistrationResult{
		Student: *student,
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}, nil
}

// validateDraft enforces the required fields of every group at once so the
// caller gets the full picture instead of failing one step at a time.
func (s *RegistrationService) validateDraft(draft *models.RegistrationDraft) error {
	missing := []string{}
	if strings.TrimSpace(draft.Personal.FirstName) == "" {
		missing = append(missing, "personal.first_name")
	}
	if strings.TrimSpace(draft.Personal.LastName) == "" {
		missing = append(missing, "personal.last_name")
	}
	if strings.TrimSpace(draft.AcademicCurrent.Course) == "" {
		missing = append(missing, "academic_current.course")
	}
	if strings.TrimSpace(draft.AcademicCurrent.YearLevel) == "" {
		missing = append(missing, "academic_current.year_level")
	}
	if strings.TrimSpace(draft.Credentials.Email) == "" {
		missing = append(missing, "credentials.email")
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "missing required fields: "+strings.Join(missing, ", "))
	}
	if err := s.validator.Var(draft.Credentials.Email, "email"); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "credentials.email must be a valid email address")
	}
	return nil
}

// generateStudentNo derives a year-prefixed student number. Collisions are
// rechecked by the caller before use.
func generateStudentNo(now time.Time) string {
	return fmt.Sprintf("%s-%05d", now.Format("2006"), now.UnixNano()%100000)
}
