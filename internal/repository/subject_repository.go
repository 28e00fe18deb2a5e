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

// SubjectRepository manages the subject catalog.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns catalog subjects matching the filter.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(title) LIKE $%d)", idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, code, title, units, active, created_at, updated_at %s ORDER BY code ASC LIMIT %d OFFSET %d`, base, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByCode fetches a subject by its catalog code.
func (r *SubjectRepository) FindByCode(ctx context.Context, code string) (*models.Subject, error) {
	const query = `SELECT id, code, title, units, active, created_at, updated_at FROM subjects WHERE code = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, code); err != nil {
		return nil, err
	}
	return &subject, nil
}

// Create inserts a catalog subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, code, title, units, active, created_at, updated_at)
        VALUES (:id, :code, :title, :units, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}
