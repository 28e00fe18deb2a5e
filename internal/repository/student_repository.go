package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openregistrar/registrar-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, user_id, student_no, first_name, middle_name, last_name, email, gender, birth_date,
        address, phone, course, year_level, photo_path, active, created_at, updated_at`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.YearLevel != "" {
		conditions = append(conditions, fmt.Sprintf("year_level = $%d", len(args)+1))
		args = append(args, filter.YearLevel)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(student_no) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"last_name":  "last_name",
		"student_no": "student_no",
		"created_at": "created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`, studentColumns, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByStudentNo fetches a student by the institutional student number.
func (r *StudentRepository) FindByStudentNo(ctx context.Context, studentNo string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE student_no = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, studentNo); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID fetches the student linked to an account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE user_id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByStudentNo checks if a student number is taken.
func (r *StudentRepository) ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error) {
	const query = `SELECT 1 FROM students WHERE student_no = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentNo); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student number: %w", err)
	}
	return true, nil
}

// CountActive returns how many active students exist. Used by the dashboard.
func (r *StudentRepository) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM students WHERE active = true`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count active students: %w", err)
	}
	return total, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	return createStudent(ctx, r.db, student)
}

func createStudent(ctx context.Context, execer sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, student_no, first_name, middle_name, last_name, email, gender, birth_date,
        address, phone, course, year_level, photo_path, active, created_at, updated_at)
        VALUES (:id, :user_id, :student_no, :first_name, :middle_name, :last_name, :email, :gender, :birth_date,
        :address, :phone, :course, :year_level, :photo_path, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, execer, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateWithUser inserts a student together with its account in one transaction.
func (r *StudentRepository) CreateWithUser(ctx context.Context, student *models.Student, user *models.User) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createUser(ctx, tx, user); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	student.UserID = &user.ID
	if err := createStudent(ctx, tx, student); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return tx.Commit()
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, middle_name = :middle_name, last_name = :last_name,
        email = :email, gender = :gender, birth_date = :birth_date, address = :address, phone = :phone,
        course = :course, year_level = :year_level, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdatePhotoPath stores (or clears) the profile photo location.
func (r *StudentRepository) UpdatePhotoPath(ctx context.Context, id string, path *string) error {
	const query = `UPDATE students SET photo_path = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("update photo path: %w", err)
	}
	return nil
}

// Deactivate marks a student as inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
