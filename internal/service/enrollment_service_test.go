package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
)

type enrollmentRepoStub struct {
	drafts      map[string]*models.EnrollmentDraft
	completed   []*models.Enrollment
	createCalls int
}

func newEnrollmentRepoStub() *enrollmentRepoStub {
	return &enrollmentRepoStub{drafts: make(map[string]*models.EnrollmentDraft)}
}

func (r *enrollmentRepoStub) CreateDraft(_ context.Context, draft *models.EnrollmentDraft) error {
	r.createCalls++
	if draft.ID == "" {
		draft.ID = fmt.Sprintf("draft-%d", r.createCalls)
	}
	for id, existing := range r.drafts {
		if existing.StudentID == draft.StudentID {
			delete(r.drafts, id)
		}
	}
	copied := *draft
	r.drafts[draft.ID] = &copied
	return nil
}

func (r *enrollmentRepoStub) FindDraftByID(_ context.Context, id string) (*models.EnrollmentDraft, error) {
	draft, ok := r.drafts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *draft
	copied.Subjects = append([]models.DraftSubject(nil), draft.Subjects...)
	return &copied, nil
}

func (r *enrollmentRepoStub) FindDraftByStudent(_ context.Context, studentID string) (*models.EnrollmentDraft, error) {
	for _, draft := range r.drafts {
		if draft.StudentID == studentID {
			copied := *draft
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *enrollmentRepoStub) UpdateDraftStatus(_ context.Context, id string, status models.EnrollmentDraftStatus) error {
	draft, ok := r.drafts[id]
	if !ok {
		return sql.ErrNoRows
	}
	draft.Status = status
	return nil
}

func (r *enrollmentRepoStub) AddDraftSubject(_ context.Context, draftID string, subject models.DraftSubject) error {
	draft, ok := r.drafts[draftID]
	if !ok {
		return sql.ErrNoRows
	}
	if draft.HasSubject(subject.SubjectCode) {
		return nil
	}
	draft.Subjects = append(draft.Subjects, subject)
	return nil
}

func (r *enrollmentRepoStub) RemoveDraftSubject(_ context.Context, draftID, subjectCode string) error {
	draft, ok := r.drafts[draftID]
	if !ok {
		return sql.ErrNoRows
	}
	kept := draft.Subjects[:0]
	for _, s := range draft.Subjects {
		if s.SubjectCode != subjectCode {
			kept = append(kept, s)
		}
	}
	draft.Subjects = kept
	return nil
}

func (r *enrollmentRepoStub) DeleteDraft(_ context.Context, id string) error {
	delete(r.drafts, id)
	return nil
}

func (r *enrollmentRepoStub) CompleteDraft(_ context.Context, draft *models.EnrollmentDraft, enrolledBy string) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{
		ID:         "enr-1",
		StudentID:  draft.StudentID,
		SchoolYear: draft.SchoolYear,
		Semester:   draft.Semester,
		TotalUnits: draft.TotalUnits(),
		EnrolledBy: enrolledBy,
	}
	r.completed = append(r.completed, enrollment)
	delete(r.drafts, draft.ID)
	return enrollment, nil
}

func (r *enrollmentRepoStub) List(_ context.Context, _ models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	out := make([]models.Enrollment, 0, len(r.completed))
	for _, e := range r.completed {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (r *enrollmentRepoStub) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	for _, e := range r.completed {
		if e.ID == id {
			return &models.EnrollmentDetail{Enrollment: *e}, nil
		}
	}
	return nil, sql.ErrNoRows
}

type subjectRepoStub struct {
	subjects map[string]*models.Subject
}

func (r *subjectRepoStub) FindByCode(_ context.Context, code string) (*models.Subject, error) {
	subject, ok := r.subjects[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return subject, nil
}

type enrollmentStudentStub struct {
	students map[string]*models.Student
	created  []*models.Student
}

func (r *enrollmentStudentStub) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := r.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func (r *enrollmentStudentStub) ExistsByStudentNo(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (r *enrollmentStudentStub) CreateWithUser(_ context.Context, student *models.Student, user *models.User) error {
	student.ID = fmt.Sprintf("stu-%d", len(r.created)+1)
	user.ID = fmt.Sprintf("user-%d", len(r.created)+1)
	student.UserID = &user.ID
	r.created = append(r.created, student)
	return nil
}

func newEnrollmentService(drafts *enrollmentRepoStub, subjects *subjectRepoStub, students *enrollmentStudentStub) *EnrollmentService {
	if subjects == nil {
		subjects = &subjectRepoStub{subjects: map[string]*models.Subject{}}
	}
	if students == nil {
		students = &enrollmentStudentStub{students: map[string]*models.Student{}}
	}
	return NewEnrollmentService(drafts, subjects, students, nil, zap.NewNop())
}

func activeStudent(id string) *models.Student {
	return &models.Student{ID: id, StudentNo: "2026-00001", FirstName: "Ana", LastName: "Reyes", Email: "ana@example.edu", Active: true}
}

func TestEnrollmentStartDraftReplacesExisting(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, nil, students)
	ctx := context.Background()

	first, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, models.DraftCollectingInfo, first.Status)

	second, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "2nd"}, "reg-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, drafts.drafts, 1)

	_, err = svc.GetDraft(ctx, first.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentStartDraftInactiveStudent(t *testing.T) {
	student := activeStudent("stu-1")
	student.Active = false
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": student}}
	svc := newEnrollmentService(newEnrollmentRepoStub(), nil, students)

	_, err := svc.StartDraft(context.Background(), models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentWizardBoundaries(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, nil, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)

	// Going back from the first state is rejected.
	_, err = svc.Backward(ctx, draft.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	draft, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftSelectingSubjects, draft.Status)

	draft, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftReviewing, draft.Status)

	// Review is the last state; completing is a separate operation.
	_, err = svc.Forward(ctx, draft.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	draft, err = svc.Backward(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftSelectingSubjects, draft.Status)
}

func TestEnrollmentAddSubjectIdempotent(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	subjects := &subjectRepoStub{subjects: map[string]*models.Subject{
		"MATH101": {Code: "MATH101", Title: "College Algebra", Units: 3, Active: true},
	}}
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, subjects, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)
	_, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		draft, err = svc.AddSubject(ctx, draft.ID, models.AddSubjectRequest{SubjectCode: "MATH101"})
		require.NoError(t, err)
	}
	assert.Len(t, draft.Subjects, 1)
	assert.Equal(t, 3, draft.TotalUnits())
}

func TestEnrollmentAddSubjectOutsideSelectionStep(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, nil, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)

	_, err = svc.AddSubject(ctx, draft.ID, models.AddSubjectRequest{SubjectCode: "MATH101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentAddInactiveSubject(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	subjects := &subjectRepoStub{subjects: map[string]*models.Subject{
		"OLD101": {Code: "OLD101", Title: "Retired Elective", Units: 3, Active: false},
	}}
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, subjects, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)
	_, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)

	_, err = svc.AddSubject(ctx, draft.ID, models.AddSubjectRequest{SubjectCode: "OLD101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCompleteDerivesUnits(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	subjects := &subjectRepoStub{subjects: map[string]*models.Subject{
		"MATH101": {Code: "MATH101", Title: "College Algebra", Units: 3, Active: true},
		"PE101":   {Code: "PE101", Title: "Physical Education I", Units: 2, Active: true},
	}}
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, subjects, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)
	_, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)
	_, err = svc.AddSubject(ctx, draft.ID, models.AddSubjectRequest{SubjectCode: "MATH101"})
	require.NoError(t, err)
	_, err = svc.AddSubject(ctx, draft.ID, models.AddSubjectRequest{SubjectCode: "PE101"})
	require.NoError(t, err)
	_, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)

	enrollment, err := svc.Complete(ctx, draft.ID, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, 5, enrollment.TotalUnits)
	assert.Equal(t, "reg-1", enrollment.EnrolledBy)

	_, err = svc.GetDraft(ctx, draft.ID)
	require.Error(t, err)
}

func TestEnrollmentCompleteWithoutSubjects(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, nil, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)
	_, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)
	_, err = svc.Forward(ctx, draft.ID)
	require.NoError(t, err)

	enrollment, err := svc.Complete(ctx, draft.ID, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, 0, enrollment.TotalUnits)
}

func TestEnrollmentCompleteRequiresReviewStep(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, nil, students)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, draft.ID, "reg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentStartDraftForNewStudent(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{}}
	svc := newEnrollmentService(drafts, nil, students)

	draft, credentials, err := svc.StartDraftForNewStudent(context.Background(), models.EnrollmentNewStudentRequest{
		FirstName:  "Ben",
		LastName:   "Cruz",
		Email:      "ben@example.edu",
		Course:     "BSCS",
		YearLevel:  "1",
		SchoolYear: "2026-2027",
		Semester:   "1st",
	}, "reg-1")
	require.NoError(t, err)
	require.NotNil(t, credentials)
	assert.NotEmpty(t, credentials.StudentNo)
	assert.NotEmpty(t, credentials.Password)
	// Details were just collected, so the wizard skips straight to subjects.
	assert.Equal(t, models.DraftSelectingSubjects, draft.Status)

	require.Len(t, students.created, 1)
	assert.Equal(t, credentials.StudentNo, students.created[0].StudentNo)
	assert.Equal(t, draft.StudentID, students.created[0].ID)
}

func TestEnrollmentDraftForStudent(t *testing.T) {
	drafts := newEnrollmentRepoStub()
	students := &enrollmentStudentStub{students: map[string]*models.Student{"stu-1": activeStudent("stu-1")}}
	svc := newEnrollmentService(drafts, nil, students)
	ctx := context.Background()

	started, err := svc.StartDraft(ctx, models.EnrollmentStartRequest{StudentID: "stu-1", SchoolYear: "2026-2027", Semester: "1st"}, "reg-1")
	require.NoError(t, err)

	found, err := svc.DraftForStudent(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, started.ID, found.ID)

	_, err = svc.DraftForStudent(ctx, "stu-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "no open draft for this student")
}
