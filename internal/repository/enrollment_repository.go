package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openregistrar/registrar-api/internal/models"
)

// EnrollmentRepository persists enrollment drafts and completed enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateDraft opens a draft for a student, replacing any existing one in the
// same transaction so a reopened wizard always starts clean.
func (r *EnrollmentRepository) CreateDraft(ctx context.Context, draft *models.EnrollmentDraft) error {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollment_drafts WHERE student_id = $1`, draft.StudentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("discard previous draft: %w", err)
	}
	const query = `INSERT INTO enrollment_drafts (id, student_id, school_year, semester, status, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :school_year, :semester, :status, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, draft); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create enrollment draft: %w", err)
	}
	return tx.Commit()
}

// FindDraftByID loads a draft with its selected subjects.
func (r *EnrollmentRepository) FindDraftByID(ctx context.Context, id string) (*models.EnrollmentDraft, error) {
	const query = `SELECT id, student_id, school_year, semester, status, created_by, created_at, updated_at
        FROM enrollment_drafts WHERE id = $1`
	var draft models.EnrollmentDraft
	if err := r.db.GetContext(ctx, &draft, query, id); err != nil {
		return nil, err
	}
	subjects, err := r.listDraftSubjects(ctx, id)
	if err != nil {
		return nil, err
	}
	draft.Subjects = subjects
	return &draft, nil
}

// FindDraftByStudent loads the open draft for a student, if any.
func (r *EnrollmentRepository) FindDraftByStudent(ctx context.Context, studentID string) (*models.EnrollmentDraft, error) {
	const query = `SELECT id, student_id, school_year, semester, status, created_by, created_at, updated_at
        FROM enrollment_drafts WHERE student_id = $1`
	var draft models.EnrollmentDraft
	if err := r.db.GetContext(ctx, &draft, query, studentID); err != nil {
		return nil, err
	}
	subjects, err := r.listDraftSubjects(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	draft.Subjects = subjects
	return &draft, nil
}

func (r *EnrollmentRepository) listDraftSubjects(ctx context.Context, draftID string) ([]models.DraftSubject, error) {
	const query = `SELECT subject_code, title, units FROM enrollment_draft_subjects
        WHERE draft_id = $1 ORDER BY position ASC`
	var subjects []models.DraftSubject
	if err := r.db.SelectContext(ctx, &subjects, query, draftID); err != nil {
		return nil, fmt.Errorf("list draft subjects: %w", err)
	}
	return subjects, nil
}

// UpdateDraftStatus moves the draft to another wizard state.
func (r *EnrollmentRepository) UpdateDraftStatus(ctx context.Context, id string, status models.EnrollmentDraftStatus) error {
	const query = `UPDATE enrollment_drafts SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update draft status: %w", err)
	}
	return nil
}

// AddDraftSubject appends a subject selection. The unique constraint on
// (draft_id, subject_code) makes repeated adds a no-op.
func (r *EnrollmentRepository) AddDraftSubject(ctx context.Context, draftID string, subject models.DraftSubject) error {
	const query = `INSERT INTO enrollment_draft_subjects (draft_id, subject_code, title, units, position)
        VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position), 0) + 1 FROM enrollment_draft_subjects WHERE draft_id = $1))
        ON CONFLICT (draft_id, subject_code) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, draftID, subject.SubjectCode, subject.Title, subject.Units); err != nil {
		return fmt.Errorf("add draft subject: %w", err)
	}
	return nil
}

// RemoveDraftSubject removes one selection by code.
func (r *EnrollmentRepository) RemoveDraftSubject(ctx context.Context, draftID, subjectCode string) error {
	const query = `DELETE FROM enrollment_draft_subjects WHERE draft_id = $1 AND subject_code = $2`
	if _, err := r.db.ExecContext(ctx, query, draftID, subjectCode); err != nil {
		return fmt.Errorf("remove draft subject: %w", err)
	}
	return nil
}

// DeleteDraft discards a draft and its selections.
func (r *EnrollmentRepository) DeleteDraft(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollment_drafts WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment draft: %w", err)
	}
	return nil
}

// CompleteDraft persists the enrollment with its subject lines and removes the
// draft, all in one transaction.
func (r *EnrollmentRepository) CompleteDraft(ctx context.Context, draft *models.EnrollmentDraft, enrolledBy string) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  draft.StudentID,
		SchoolYear: draft.SchoolYear,
		Semester:   draft.Semester,
		TotalUnits: draft.TotalUnits(),
		EnrolledBy: enrolledBy,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	const insertEnrollment = `INSERT INTO enrollments (id, student_id, school_year, semester, total_units, enrolled_by, created_at)
        VALUES (:id, :student_id, :school_year, :semester, :total_units, :enrolled_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertEnrollment, enrollment); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	const insertSubject = `INSERT INTO enrollment_subjects (id, enrollment_id, subject_code, title, units)
        VALUES ($1, $2, $3, $4, $5)`
	for _, s := range draft.Subjects {
		if _, err := tx.ExecContext(ctx, insertSubject, uuid.NewString(), enrollment.ID, s.SubjectCode, s.Title, s.Units); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("create enrollment subject: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollment_drafts WHERE id = $1`, draft.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("delete completed draft: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// List returns completed enrollments matching the filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := "FROM enrollments"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, school_year, semester, total_units, enrolled_by, created_at %s
        ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindDetailByID loads an enrollment with its subject lines.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT id, student_id, school_year, semester, total_units, enrolled_by, created_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	const subjectQuery = `SELECT id, enrollment_id, subject_code, title, units FROM enrollment_subjects
        WHERE enrollment_id = $1 ORDER BY subject_code ASC`
	var subjects []models.EnrollmentSubject
	if err := r.db.SelectContext(ctx, &subjects, subjectQuery, id); err != nil {
		return nil, fmt.Errorf("list enrollment subjects: %w", err)
	}
	return &models.EnrollmentDetail{Enrollment: enrollment, Subjects: subjects}, nil
}

// CountActiveForTerm returns how many enrollments exist for a school year and
// semester. Used by the dashboard summary.
func (r *EnrollmentRepository) CountActiveForTerm(ctx context.Context, schoolYear, semester string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE school_year = $1 AND semester = $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, schoolYear, semester); err != nil {
		return 0, fmt.Errorf("count enrollments for term: %w", err)
	}
	return total, nil
}
