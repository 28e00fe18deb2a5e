package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/openregistrar/registrar-api/internal/models"
)

// RequestRepository manages persistence for document requests and their
// uploaded attachments.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs a RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, student_id, document_type, purpose, status, amount, result_path, created_by, created_at, updated_at`

// Create inserts a new document request.
func (r *RequestRepository) Create(ctx context.Context, request *models.DocumentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	const query = `INSERT INTO document_requests (id, student_id, document_type, purpose, status, amount, result_path, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :document_type, :purpose, :status, :amount, :result_path, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create document request: %w", err)
	}
	return nil
}

// FindByID fetches a request by ID.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.DocumentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_requests WHERE id = $1`, requestColumns)
	var request models.DocumentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID fetches a request joined with the owning student.
func (r *RequestRepository) FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	const query = `SELECT r.id, r.student_id, r.document_type, r.purpose, r.status, r.amount, r.result_path,
        r.created_by, r.created_at, r.updated_at,
        s.student_no AS student_no,
        TRIM(CONCAT(s.first_name, ' ', s.last_name)) AS student_name
        FROM document_requests r JOIN students s ON s.id = r.student_id WHERE r.id = $1`
	var detail models.RequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns requests matching the filter.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error) {
	base := `FROM document_requests r JOIN students s ON s.id = r.student_id`
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("r.document_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"created_at": "r.created_at",
		"status":     "r.status",
		"type":       "r.document_type",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "r.created_at"
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

	query := fmt.Sprintf(`SELECT r.id, r.student_id, r.document_type, r.purpose, r.status, r.amount, r.result_path,
        r.created_by, r.created_at, r.updated_at,
        s.student_no AS student_no,
        TRIM(CONCAT(s.first_name, ' ', s.last_name)) AS student_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var requests []models.RequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list document requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count document requests: %w", err)
	}
	return requests, total, nil
}

// UpdateStatus moves a request to a new workflow state. Service code checks
// the transition table first; this just persists the result.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	const query = `UPDATE document_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// UpdateStatusAndAmount moves a request to a new workflow state and records
// the assessed fee in one statement, so a failure cannot leave the status
// committed without its amount.
func (r *RequestRepository) UpdateStatusAndAmount(ctx context.Context, id string, status models.RequestStatus, amount decimal.Decimal) error {
	const query = `UPDATE document_requests SET status = $2, amount = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, amount, time.Now().UTC()); err != nil {
		return fmt.Errorf("update request status and amount: %w", err)
	}
	return nil
}

// UpdateResultPath stores where the generated document landed.
func (r *RequestRepository) UpdateResultPath(ctx context.Context, id, path string) error {
	const query = `UPDATE document_requests SET result_path = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("update request result path: %w", err)
	}
	return nil
}

// CountByStatus returns counts per workflow state for the dashboard.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM document_requests GROUP BY status`
	rows := []struct {
		Status models.RequestStatus `db:"status"`
		Total  int                  `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	counts := make(map[models.RequestStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// CreateAttachment records an uploaded file for a request.
func (r *RequestRepository) CreateAttachment(ctx context.Context, attachment *models.RequestAttachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO request_attachments (id, request_id, filename, path, content_type, size_bytes, created_at)
        VALUES (:id, :request_id, :filename, :path, :content_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("create request attachment: %w", err)
	}
	return nil
}

// ListAttachments returns the files uploaded with a request.
func (r *RequestRepository) ListAttachments(ctx context.Context, requestID string) ([]models.RequestAttachment, error) {
	const query = `SELECT id, request_id, filename, path, content_type, size_bytes, created_at
        FROM request_attachments WHERE request_id = $1 ORDER BY created_at ASC`
	var attachments []models.RequestAttachment
	if err := r.db.SelectContext(ctx, &attachments, query, requestID); err != nil {
		return nil, fmt.Errorf("list request attachments: %w", err)
	}
	return attachments, nil
}
