package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	CreateDraft(ctx context.Context, draft *models.EnrollmentDraft) error
	FindDraftByID(ctx context.Context, id string) (*models.EnrollmentDraft, error)
	FindDraftByStudent(ctx context.Context, studentID string) (*models.EnrollmentDraft, error)
	UpdateDraftStatus(ctx context.Context, id string, status models.EnrollmentDraftStatus) error
	AddDraftSubject(ctx context.Context, draftID string, subject models.DraftSubject) error
	RemoveDraftSubject(ctx context.Context, draftID, subjectCode string) error
	DeleteDraft(ctx context.Context, id string) error
	CompleteDraft(ctx context.Context, draft *models.EnrollmentDraft, enrolledBy string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type enrollmentSubjectRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Subject, error)
}

type enrollmentStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error)
	CreateWithUser(ctx context.Context, student *models.Student, user *models.User) error
}

// draftForward maps each wizard state to its successor. Completing the last
// state is a separate explicit operation.
var draftForward = map[models.EnrollmentDraftStatus]models.EnrollmentDraftStatus{
	models.DraftCollectingInfo:    models.DraftSelectingSubjects,
	models.DraftSelectingSubjects: models.DraftReviewing,
}

var draftBackward = map[models.EnrollmentDraftStatus]models.EnrollmentDraftStatus{
	models.DraftSelectingSubjects: models.DraftCollectingInfo,
	models.DraftReviewing:         models.DraftSelectingSubjects,
}

// EnrollmentService drives the three-step enrollment wizard and manages
// completed enrollments.
type EnrollmentService struct {
	drafts    enrollmentRepository
	subjects  enrollmentSubjectRepository
	students  enrollmentStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(drafts enrollmentRepository, subjects enrollmentSubjectRepository, students enrollmentStudentRepository, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{drafts: drafts, subjects: subjects, students: students, validator: validate, logger: logger}
}

// StartDraft opens the wizard for an existing student. Any previous draft for
// the same student is replaced.
func (s *EnrollmentService) StartDraft(ctx context.Context, req models.EnrollmentStartRequest, createdBy string) (*models.EnrollmentDraft, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student record is inactive")
	}

	draft := &models.EnrollmentDraft{
		StudentID:  student.ID,
		SchoolYear: req.SchoolYear,
		Semester:   req.Semester,
		Status:     models.DraftCollectingInfo,
		CreatedBy:  createdBy,
	}
	if err := s.drafts.CreateDraft(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open enrollment draft")
	}
	return draft, nil
}

// StartDraftForNewStudent creates a student record with a generated account
// and opens the wizard in one go. The plaintext password is returned exactly
// once and never stored.
func (s *EnrollmentService) StartDraftForNewStudent(ctx context.Context, req models.EnrollmentNewStudentRequest, createdBy string) (*models.EnrollmentDraft, *models.GeneratedCredentials, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	studentNo := generateStudentNo(time.Now().UTC())
	for attempt := 0; attempt < 5; attempt++ {
		taken, err := s.students.ExistsByStudentNo(ctx, studentNo)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student number")
		}
		if !taken {
			break
		}
		studentNo = generateStudentNo(time.Now().UTC())
	}

	password, err := generatePassword()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate credentials")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FirstName + " " + req.LastName),
		Role:         models.RoleStudent,
		Active:       true,
	}
	student := &models.Student{
		StudentNo:  studentNo,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Email:      user.Email,
		Course:     req.Course,
		YearLevel:  req.YearLevel,
		Active:     true,
	}
	if err := s.students.CreateWithUser(ctx, student, user); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student account")
	}

	// The student details were just collected, so the wizard opens directly
	// at subject selection.
	draft := &models.EnrollmentDraft{
		StudentID:  student.ID,
		SchoolYear: req.SchoolYear,
		Semester:   req.Semester,
		Status:     models.DraftSelectingSubjects,
		CreatedBy:  createdBy,
	}
	if err := s.drafts.CreateDraft(ctx, draft); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open enrollment draft")
	}

	s.logger.Info("student created during enrollment",
		zap.String("student_id", student.ID),
		zap.String("student_no", student.StudentNo))

	return draft, &models.GeneratedCredentials{StudentNo: studentNo, Password: password}, nil
}

// GetDraft loads a draft with its subject selections.
func (s *EnrollmentService) GetDraft(ctx context.Context, id string) (*models.EnrollmentDraft, error) {
	draft, err := s.drafts.FindDraftByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment draft not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment draft")
	}
	return draft, nil
}

// DraftForStudent finds the open draft belonging to a student, letting staff
// resume a wizard without the draft ID.
func (s *EnrollmentService) DraftForStudent(ctx context.Context, studentID string) (*models.EnrollmentDraft, error) {
	draft, err := s.drafts.FindDraftByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no open draft for this student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment draft")
	}
	return draft, nil
}

// Forward advances the wizard one state and returns the updated draft.
func (s *EnrollmentService) Forward(ctx context.Context, id string) (*models.EnrollmentDraft, error) {
	return s.transition(ctx, id, draftForward, "draft is already at the review step")
}

// Backward moves the wizard one state back and returns the updated draft.
func (s *EnrollmentService) Backward(ctx context.Context, id string) (*models.EnrollmentDraft, error) {
	return s.transition(ctx, id, draftBackward, "draft is already at the first step")
}

func (s *EnrollmentService) transition(ctx context.Context, id string, table map[models.EnrollmentDraftStatus]models.EnrollmentDraftStatus, boundaryMsg string) (*models.EnrollmentDraft, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	next, ok := table[draft.Status]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, boundaryMsg)
	}
	if err := s.drafts.UpdateDraftStatus(ctx, id, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move enrollment draft")
	}
	draft.Status = next
	return draft, nil
}

// AddSubject selects a subject on the draft. Adding a code that is already
// selected changes nothing; the returned draft is authoritative either way.
func (s *EnrollmentService) AddSubject(ctx context.Context, id string, req models.AddSubjectRequest) (*models.EnrollmentDraft, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftSelectingSubjects {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "subjects can only be changed during the subject selection step")
	}

	subject, err := s.subjects.FindByCode(ctx, req.SubjectCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found in catalog")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if !subject.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "subject is no longer offered")
	}

	if err := s.drafts.AddDraftSubject(ctx, id, models.DraftSubject{
		SubjectCode: subject.Code,
		Title:       subject.Title,
		Units:       subject.Units,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add subject")
	}

	return s.GetDraft(ctx, id)
}

// RemoveSubject drops a selection from the draft.
func (s *EnrollmentService) RemoveSubject(ctx context.Context, id, subjectCode string) (*models.EnrollmentDraft, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftSelectingSubjects {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "subjects can only be changed during the subject selection step")
	}
	if err := s.drafts.RemoveDraftSubject(ctx, id, subjectCode); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove subject")
	}
	return s.GetDraft(ctx, id)
}

// CancelDraft discards the draft entirely.
func (s *EnrollmentService) CancelDraft(ctx context.Context, id string) error {
	if _, err := s.GetDraft(ctx, id); err != nil {
		return err
	}
	if err := s.drafts.DeleteDraft(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard enrollment draft")
	}
	return nil
}

// Complete turns a reviewed draft into a persisted enrollment. An empty
// subject list is allowed; the total units are derived from the lines.
func (s *EnrollmentService) Complete(ctx context.Context, id, enrolledBy string) (*models.Enrollment, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftReviewing {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "draft must reach the review step before completion")
	}

	enrollment, err := s.drafts.CompleteDraft(ctx, draft, enrolledBy)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}

	s.logger.Info("enrollment completed",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.Int("total_units", enrollment.TotalUnits))

	return enrollment, nil
}

// List returns completed enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.drafts.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetDetail loads one enrollment with its subject lines.
func (s *EnrollmentService) GetDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.drafts.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

func generatePassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
