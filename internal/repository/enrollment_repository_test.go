package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openregistrar/registrar-api/internal/models"
)

func TestEnrollmentRepositoryCreateDraftReplacesExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollment_drafts WHERE student_id = $1")).
		WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollment_drafts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	draft := &models.EnrollmentDraft{
		StudentID:  "stu-1",
		SchoolYear: "2026-2027",
		Semester:   "1st",
		Status:     models.DraftSelectingSubjects,
		CreatedBy:  "user-1",
	}
	err := repo.CreateDraft(context.Background(), draft)
	require.NoError(t, err)
	assert.NotEmpty(t, draft.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAddDraftSubjectIsIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	query := regexp.QuoteMeta(`INSERT INTO enrollment_draft_subjects (draft_id, subject_code, title, units, position)
        VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position), 0) + 1 FROM enrollment_draft_subjects WHERE draft_id = $1))
        ON CONFLICT (draft_id, subject_code) DO NOTHING`)

	mock.ExpectExec(query).
		WithArgs("draft-1", "ENG101", "English 1", 3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// The second add hits the unique constraint and affects no rows.
	mock.ExpectExec(query).
		WithArgs("draft-1", "ENG101", "English 1", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	subject := models.DraftSubject{SubjectCode: "ENG101", Title: "English 1", Units: 3}
	require.NoError(t, repo.AddDraftSubject(context.Background(), "draft-1", subject))
	require.NoError(t, repo.AddDraftSubject(context.Background(), "draft-1", subject))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCompleteDraftRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	draft := &models.EnrollmentDraft{
		ID:         "draft-1",
		StudentID:  "stu-1",
		SchoolYear: "2026-2027",
		Semester:   "1st",
		Status:     models.DraftReviewing,
		Subjects:   []models.DraftSubject{{SubjectCode: "ENG101", Title: "English 1", Units: 3}},
	}
	_, err := repo.CompleteDraft(context.Background(), draft, "user-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
