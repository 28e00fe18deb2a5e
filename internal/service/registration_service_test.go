package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type registrationRepoStub struct {
	drafts map[string]*models.RegistrationDraft
	calls  int
}

func newRegistrationRepoStub() *registrationRepoStub {
	return &registrationRepoStub{drafts: make(map[string]*models.RegistrationDraft)}
}

func (r *registrationRepoStub) Create(_ context.Context, draft *models.RegistrationDraft) error {
	r.calls++
	if draft.ID == "" {
		draft.ID = fmt.Sprintf("reg-%d", len(r.drafts)+1)
	}
	if draft.CurrentStep == 0 {
		draft.CurrentStep = models.RegistrationFirstStep
	}
	copied := *draft
	r.drafts[draft.ID] = &copied
	return nil
}

func (r *registrationRepoStub) FindByID(_ context.Context, id string) (*models.RegistrationDraft, error) {
	r.calls++
	draft, ok := r.drafts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *draft
	return &copied, nil
}

func (r *registrationRepoStub) Update(_ context.Context, draft *models.RegistrationDraft) error {
	r.calls++
	copied := *draft
	r.drafts[draft.ID] = &copied
	return nil
}

func (r *registrationRepoStub) Delete(_ context.Context, id string) error {
	r.calls++
	delete(r.drafts, id)
	return nil
}

type registrationStudentStub struct {
	created []*models.Student
	calls   int
}

func (r *registrationStudentStub) ExistsByStudentNo(_ context.Context, _ string) (bool, error) {
	r.calls++
	return false, nil
}

func (r *registrationStudentStub) CreateWithUser(_ context.Context, student *models.Student, user *models.User) error {
	r.calls++
	student.ID = "stu-1"
	user.ID = "user-1"
	student.UserID = &user.ID
	r.created = append(r.created, student)
	return nil
}

type registrationUserStub struct {
	taken map[string]bool
	calls int
}

func (r *registrationUserStub) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.calls++
	return r.taken[strings.ToLower(email)], nil
}

func newRegistrationService(drafts *registrationRepoStub, students *registrationStudentStub, users *registrationUserStub) *RegistrationService {
	if students == nil {
		students = &registrationStudentStub{}
	}
	if users == nil {
		users = &registrationUserStub{}
	}
	return NewRegistrationService(drafts, students, users, nil, zap.NewNop())
}

func completeDraftFields() models.RegistrationStepRequest {
	return models.RegistrationStepRequest{
		Personal: &models.PersonalInfo{
			FirstName: "Ana",
			LastName:  "Reyes",
			BirthDate: "2004-03-15",
		},
		AcademicCurrent: &models.AcademicCurrentInfo{
			Course:    "BSCS",
			YearLevel: "1",
		},
		Credentials: &models.CredentialsInfo{Email: "ana@example.edu"},
	}
}

func advanceToLastStep(t *testing.T, svc *RegistrationService, id string) {
	t.Helper()
	ctx := context.Background()
	for i := models.RegistrationFirstStep; i < models.RegistrationLastStep; i++ {
		_, err := svc.Next(ctx, id)
		require.NoError(t, err)
	}
}

func TestRegistrationStepMovementClamped(t *testing.T) {
	drafts := newRegistrationRepoStub()
	svc := newRegistrationService(drafts, nil, nil)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationFirstStep, draft.CurrentStep)

	// Back at step 1 stays at step 1.
	draft, err = svc.Back(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationFirstStep, draft.CurrentStep)

	for i := 0; i < 10; i++ {
		draft, err = svc.Next(ctx, draft.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, models.RegistrationLastStep, draft.CurrentStep)

	draft, err = svc.Back(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationLastStep-1, draft.CurrentStep)
}

func TestRegistrationSaveFieldsMergesGroups(t *testing.T) {
	drafts := newRegistrationRepoStub()
	svc := newRegistrationService(drafts, nil, nil)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)

	draft, err = svc.SaveFields(ctx, draft.ID, models.RegistrationStepRequest{
		Personal: &models.PersonalInfo{FirstName: "Ana", LastName: "Reyes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", draft.Personal.FirstName)

	// A later save of a different group leaves the first intact.
	draft, err = svc.SaveFields(ctx, draft.ID, models.RegistrationStepRequest{
		Credentials: &models.CredentialsInfo{Email: "ana@example.edu"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", draft.Personal.FirstName)
	assert.Equal(t, "ana@example.edu", draft.Credentials.Email)
}

func TestRegistrationSaveFieldsAcceptsPartialValues(t *testing.T) {
	drafts := newRegistrationRepoStub()
	svc := newRegistrationService(drafts, nil, nil)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)

	// Nothing is validated while the wizard is in progress.
	draft, err = svc.SaveFields(ctx, draft.ID, models.RegistrationStepRequest{
		Credentials: &models.CredentialsInfo{Email: "not-an-email"},
	})
	require.NoError(t, err)
	assert.Equal(t, "not-an-email", draft.Credentials.Email)
}

func TestRegistrationSubmitPasswordMismatchTouchesNothing(t *testing.T) {
	drafts := newRegistrationRepoStub()
	students := &registrationStudentStub{}
	users := &registrationUserStub{}
	svc := newRegistrationService(drafts, students, users)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SaveFields(ctx, draft.ID, completeDraftFields())
	require.NoError(t, err)

	callsBefore := drafts.calls
	_, err = svc.Submit(ctx, draft.ID, models.RegistrationSubmitRequest{
		Password:        "secret-pass-1",
		ConfirmPassword: "secret-pass-2",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "passwords do not match")

	// The mismatch is caught before anything is read or written.
	assert.Equal(t, callsBefore, drafts.calls)
	assert.Zero(t, students.calls)
	assert.Zero(t, users.calls)
}

func TestRegistrationSubmitReportsAllMissingFields(t *testing.T) {
	drafts := newRegistrationRepoStub()
	svc := newRegistrationService(drafts, nil, nil)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)
	advanceToLastStep(t, svc, draft.ID)

	_, err = svc.Submit(ctx, draft.ID, models.RegistrationSubmitRequest{
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "personal.first_name")
	assert.Contains(t, msg, "personal.last_name")
	assert.Contains(t, msg, "academic_current.course")
	assert.Contains(t, msg, "academic_current.year_level")
	assert.Contains(t, msg, "credentials.email")
}

func TestRegistrationSubmitCreatesStudentAndRemovesDraft(t *testing.T) {
	drafts := newRegistrationRepoStub()
	students := &registrationStudentStub{}
	users := &registrationUserStub{}
	svc := newRegistrationService(drafts, students, users)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SaveFields(ctx, draft.ID, completeDraftFields())
	require.NoError(t, err)
	advanceToLastStep(t, svc, draft.ID)

	result, err := svc.Submit(ctx, draft.ID, models.RegistrationSubmitRequest{
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", result.Student.FirstName)
	assert.NotEmpty(t, result.Student.StudentNo)
	assert.Equal(t, models.RoleStudent, result.User.Role)
	require.NotNil(t, result.Student.BirthDate)
	assert.Equal(t, "2004-03-15", result.Student.BirthDate.Format("2006-01-02"))

	require.Len(t, students.created, 1)
	// The password travels only as a bcrypt hash.
	assert.Empty(t, drafts.drafts, "submitted draft should be removed")
}

func TestRegistrationSubmitDuplicateEmail(t *testing.T) {
	drafts := newRegistrationRepoStub()
	users := &registrationUserStub{taken: map[string]bool{"ana@example.edu": true}}
	students := &registrationStudentStub{}
	svc := newRegistrationService(drafts, students, users)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SaveFields(ctx, draft.ID, completeDraftFields())
	require.NoError(t, err)
	advanceToLastStep(t, svc, draft.ID)

	_, err = svc.Submit(ctx, draft.ID, models.RegistrationSubmitRequest{
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Zero(t, students.calls)
}

func TestRegistrationSubmitRequiresFinalStep(t *testing.T) {
	drafts := newRegistrationRepoStub()
	students := &registrationStudentStub{}
	users := &registrationUserStub{}
	svc := newRegistrationService(drafts, students, users)
	ctx := context.Background()

	draft, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SaveFields(ctx, draft.ID, completeDraftFields())
	require.NoError(t, err)

	// Every field is filled in, but the wizard is still on step 1.
	_, err = svc.Submit(ctx, draft.ID, models.RegistrationSubmitRequest{
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "final step")
	assert.Zero(t, students.calls)
	assert.Zero(t, users.calls)

	advanceToLastStep(t, svc, draft.ID)
	_, err = svc.Submit(ctx, draft.ID, models.RegistrationSubmitRequest{
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.NoError(t, err)
}

func TestGenerateStudentNoFormat(t *testing.T) {
	no := generateStudentNo(mustParseTime(t, "2026-09-01T10:00:00Z"))
	assert.True(t, strings.HasPrefix(no, "2026-"))
	assert.Len(t, no, len("2026-00000"))
}
